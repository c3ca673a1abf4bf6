// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
Package types 提供 muxi-llm 的全局共享错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。llm、fallback 与根包
均通过这里的 Error / ErrorCode 表达失败原因，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含 Stage、HTTP 状态码、Retryable、Provider 标记
  - AttemptError：降级链中单个候选的失败记录（序号、候选、Provider、模型与错误）
  - FallbackError：所有候选均可重试失败后的聚合错误（按尝试顺序）

# 主要能力

  - 错误工具链：AsError / IsCode / GetErrorCode / IsRetryable
  - 常用错误构造：NewInvalidRequestError / NewRateLimitError / NewTimeoutError /
    NewServerError / NewAuthError
  - FromContext 将 context 错误映射为 CANCELED 或 UPSTREAM_TIMEOUT
*/
package types
