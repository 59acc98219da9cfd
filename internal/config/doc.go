// Package config 加载命令行客户端的 YAML 配置，并支持通过环境变量覆盖服务端地址、
// API Key 与实时通道开关。
package config
