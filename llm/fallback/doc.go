// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
Package fallback 提供按顺序尝试候选模型的降级编排器。

# 概述

Orchestrator 接收候选列表（"provider/model" 形式）、原始请求与 Policy，
依次解析每个候选、按其能力重新规范化请求并调用 Provider，返回第一个成功结果。

# 错误分类

  - 成功：立即返回 Result，Failures 记录此前的失败。
  - 可重试：错误码属于 Policy.RetryOn，继续下一个候选。
  - 致命：其他错误、解析失败或调用方取消，立即返回。

全部候选均以可重试错误失败时，返回 *types.FallbackError，按尝试顺序列出每个错误。

# 流式请求

首个数据块到达前的失败可以降级；之后的错误以终止块的形式转发给调用方。
Policy.AttemptTimeout 对流式请求只约束首块等待时间。
*/
package fallback
