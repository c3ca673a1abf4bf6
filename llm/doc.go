// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求与响应模型、
能力声明以及按标签解析 Provider 的注册表。

# 概述

本包屏蔽不同模型服务商在接口与流式协议上的差异，对上层暴露一致的
请求与响应模型。模型以 "provider/model" 形式的标识引用，provider 部分
是注册表中的标签，model 部分原样传给 Provider。

# 核心接口

  - [Provider]：提供 Completion / Stream / Name / Capabilities
  - [ProviderFactory]：惰性构造 Provider，每个标签至多成功构造一次

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应，[ChatRequest.Clone] 深拷贝
  - [Message] / [ContentItem]：纯文本或多段（文本、图像、音频）消息
  - [StreamChunk]：流式分片，Err 非空时为终止块
  - [Capabilities] / [Feature] / [CapabilityWarning]：能力声明与降级告警
  - [ModelID]：解析后的 "provider/model" 标识

# 注册表

[Registry] 按标签登记工厂，可用 [WithCapabilities] 覆盖 Provider 声明的
能力、用 [WithRateLimit] 为标签加令牌桶限流。[Registry.Resolve] 返回
[Handle]，并发安全。

# 相关子包

  - llm/middleware：能力改写与调用中间件链
  - llm/fallback：按序降级的编排器
  - llm/factory：从配置构建注册表
  - llm/retry：退避策略
  - llm/observability：OpenTelemetry 追踪与指标
*/
package llm
