// Copyright (c) muxi-llm Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的降级编排指标采集能力。

# 概述

Collector 向给定的 Registerer 注册指标，同名指标已存在时复用，所有指标按 namespace
隔离。它实现 fallback.Collector 接口，由编排器在每次尝试、降级、
能力告警与降级链耗尽时调用。

# 主要能力

  - Provider 调用：调用总数（按错误码分组）、耗时、Token 用量。
  - 降级编排：按结果分组的尝试数、降级次数、能力告警、耗尽次数与链长度。
*/
package metrics
