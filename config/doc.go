// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

// Package config 提供 muxi-llm 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，
// 包含日志、遥测、降级策略、Prometheus 指标与 Provider 覆盖项。
// NewLogger 根据 LogConfig 构建 zap Logger。
package config
