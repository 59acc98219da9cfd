// Package relay 将客户端收到的服务端推送转发到外部系统（Redis、RabbitMQ、MySQL 事件日志），
// 驱动由配置选择，多个驱动通过 Fanout 同时投递。
package relay
