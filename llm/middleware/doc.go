// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
包 middleware 提供请求发送到 Provider 之前的能力改写，以及包裹单次
Provider 调用的中间件链。

# 概述

不同 Provider 声明的能力（JSON 模式、流式、图像输入、音频输入）各不相同。
本包把请求改写为目标 Provider 能够接受的形式，并以告警而非错误的方式
报告每一次降级。改写总是作用于请求副本，调用方的原始请求保持不变，
因此同一请求可以针对降级链中的每个候选独立重新归一化。

# 核心接口

  - RequestRewriter / RewriterChain：按顺序执行的请求改写器链。
  - JSONModeRewriter / StreamRewriter / VisionRewriter / AudioRewriter：
    四个能力改写器，按此顺序执行。
  - Normalize：克隆请求、执行能力改写链并返回 []llm.CapabilityWarning。
  - Handler / Middleware / Chain：包裹单次补全调用的中间件组合。
  - LoggingMiddleware / MetricsMiddleware / RecoveryMiddleware：内置中间件。
*/
package middleware
