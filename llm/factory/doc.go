// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

// Package factory 根据配置构建 Provider 注册表，
// 将 providers 配置中的能力覆盖与本地限流转换为注册选项。
package factory
