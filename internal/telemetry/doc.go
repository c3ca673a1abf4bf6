// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，
// 为降级编排提供 TracerProvider 与 MeterProvider。
// 遥测关闭时使用全局 noop 实现，不连接任何外部服务。
package telemetry
