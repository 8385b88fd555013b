// Package rules 维护缓存规则表：每条规则由 URL 匹配器、路径布局与永久标记组成，
// 按注册顺序首个命中生效。Resolver 在规则表之上负责把生成的路径规范化到缓存根目录下，
// 越界路径一律视为不可缓存。
//
// 内置匹配器：any、prefix、suffix、host、glob、regexp；
// 内置布局：md5、sha1、raw_path，可通过 RegisterLayout 在 init() 中扩展。
package rules
