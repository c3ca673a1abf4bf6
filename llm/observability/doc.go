// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
包 observability 为降级编排提供 OpenTelemetry 追踪与指标。

每次编排产生一个 llm.orchestration span，每个候选尝试产生一个子 span
llm.attempt；降级与能力告警以 span 事件和计数器的形式记录。
未初始化 OTel SDK 时使用全局 noop Provider，不产生任何开销。
*/
package observability
