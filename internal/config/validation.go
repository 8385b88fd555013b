package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var supportedMatchKinds = map[string]struct{}{
	"any":    {},
	"prefix": {},
	"suffix": {},
	"host":   {},
	"glob":   {},
	"regexp": {},
}

const supportedMatchKindList = "any|prefix|suffix|host|glob|regexp"

var supportedLayouts = map[string]struct{}{
	"md5":      {},
	"sha1":     {},
	"raw_path": {},
}

const supportedLayoutList = "md5|sha1|raw_path"

var supportedNetworkClasses = map[string]struct{}{
	"wifi":     {},
	"cellular": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if _, ok := supportedNetworkClasses[g.NetworkClass]; !ok {
		return newFieldError("Global.NetworkClass", "仅支持 wifi|cellular")
	}
	if g.ProbeAddress != "" {
		if !strings.Contains(g.ProbeAddress, ":") {
			return newFieldError("Global.ProbeAddress", "必须为 host:port")
		}
		if g.ProbeInterval.DurationValue() <= 0 {
			return newFieldError("Global.ProbeInterval", "必须大于 0")
		}
	}

	for name := range c.CustomHeaders {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " :\r\n") {
			return newFieldError("CustomHeaders", fmt.Sprintf("非法头部名称 %q", name))
		}
	}

	if len(c.Rules) == 0 {
		return errors.New("至少需要配置一条 Rule")
	}

	folders := map[string]bool{}
	for i := range c.Rules {
		rule := &c.Rules[i]
		if err := validateFolder(rule.Folder); err != nil {
			return fmt.Errorf("%s: %w", ruleField(rule.Folder, "Folder"), err)
		}
		if permanent, seen := folders[rule.Folder]; seen && permanent != rule.Permanent {
			return newFieldError(ruleField(rule.Folder, "Permanent"), "同一 Folder 的规则必须保持一致")
		}
		folders[rule.Folder] = rule.Permanent

		kind := strings.ToLower(strings.TrimSpace(rule.Match))
		if _, ok := supportedMatchKinds[kind]; !ok {
			return newFieldError(ruleField(rule.Folder, "Match"), "仅支持 "+supportedMatchKindList)
		}
		rule.Match = kind
		if kind != "any" && rule.Pattern == "" {
			return newFieldError(ruleField(rule.Folder, "Pattern"), "不能为空")
		}
		if kind == "regexp" {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("%s: %w", ruleField(rule.Folder, "Pattern"), err)
			}
		}

		layout := strings.ToLower(strings.TrimSpace(rule.Layout))
		if _, ok := supportedLayouts[layout]; !ok {
			return newFieldError(ruleField(rule.Folder, "Layout"), "仅支持 "+supportedLayoutList)
		}
		rule.Layout = layout
	}

	seenNames := map[string]struct{}{}
	seenDomains := map[string]struct{}{}
	for i := range c.Origins {
		origin := &c.Origins[i]
		if origin.Name == "" {
			return newFieldError("Origin[].Name", "不能为空")
		}
		if _, exists := seenNames[origin.Name]; exists {
			return newFieldError(originField(origin.Name, "Name"), "重复")
		}
		seenNames[origin.Name] = struct{}{}

		if err := validateDomain(origin.Domain); err != nil {
			return fmt.Errorf("%s: %w", originField(origin.Name, "Domain"), err)
		}
		domain := strings.ToLower(origin.Domain)
		if _, exists := seenDomains[domain]; exists {
			return newFieldError(originField(origin.Name, "Domain"), "重复")
		}
		seenDomains[domain] = struct{}{}

		if err := validateUpstream(origin.Upstream); err != nil {
			return fmt.Errorf("%s: %w", originField(origin.Name, "Upstream"), err)
		}
	}

	return nil
}

func validateFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return errors.New("Folder 不能为空")
	}
	if strings.ContainsAny(folder, `/\`) {
		return errors.New("Folder 不允许包含路径分隔符")
	}
	if folder == "." || folder == ".." {
		return errors.New("Folder 不允许为相对目录")
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
