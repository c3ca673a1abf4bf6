// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 muxi-llm 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessageTexts / AssertEventuallyTrue
  - 流式辅助: CollectStream / StreamContent / SendChunksToChannel

# 子包

  - testutil/mocks: MockProvider，支持 Builder 模式、按调用序号注入错误与流式中途失败
  - testutil/fixtures: 预置 ChatResponse、StreamChunk 与多模态请求样例
*/
package testutil
