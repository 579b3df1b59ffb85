// Package sphere 对接指纹浏览器的本地控制API和浏览器调试端点
//
// Client 封装会话列表、启动、停止和快速创建接口;Prober 在有界端口范围内
// 通过 /json 探测调试端点;RodDialer 用go-rod连接调试端点;Broker 把三者
// 组合起来,为每个运行提供独占的 Connection。
package sphere
