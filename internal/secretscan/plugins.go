package secretscan

import (
	"encoding/base64"
	"encoding/json"
	"net/netip"
	"sort"
	"strings"
)

// registry holds the built-in plugins, keyed by name.
var registry = buildRegistry(
	newRegexPlugin("AWSKeyDetector", nil,
		`(?:A3T[A-Z0-9]|ABIA|ACCA|AKIA|ASIA)[0-9A-Z]{16}`,
		`(?i)aws.{0,20}?(?:key|pwd|pw|password|pass|token).{0,20}?['"]([0-9a-zA-Z/+]{40})['"]`,
	),
	newRegexPlugin("ArtifactoryDetector", nil,
		`(?:\s|=|:|"|^)(AKC[a-zA-Z0-9]{10,})(?:\s|"|$)`,
		`(?:\s|=|:|"|^)(AP[\dABCDEF][a-zA-Z0-9]{8,})(?:\s|"|$)`,
	),
	newRegexPlugin("AzureStorageKeyDetector", nil,
		`AccountKey=([a-zA-Z0-9+/=]{88})`,
		`(?i)azure[a-z ]{0,30}key[a-z ]{0,10}[:=]\s*([a-zA-Z0-9+/]{86}==)`,
	),
	newRegexPlugin("BasicAuthDetector", nil,
		`://[^{}\s]+:([^{}\s]+)@`,
		`(?i)authorization:\s*basic\s+([A-Za-z0-9+/]{8,}={0,2})`,
	),
	newRegexPlugin("CloudantDetector", nil,
		`(?i)https?://[\w\-]+:([\w\-]+)@[\w\-]+\.cloudant\.com`,
		`(?i)cloudant[\w\-]{0,20}(?:api[_\-]?key|password|pwd|pass)[^\n:=]{0,10}[:=]\s*['"]?([0-9a-f]{64}|[a-z]{24})(?:['"]|\s|$)`,
	),
	newRegexPlugin("DiscordBotTokenDetector", nil,
		`(?:^|[^\w\-])([MNO][\w\-]{23,25}\.[\w\-]{6}\.[\w\-]{27,38})(?:[^\w\-]|$)`,
	),
	newRegexPlugin("GitHubTokenDetector", nil,
		`(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36}`,
		`github_pat_[A-Za-z0-9_]{22,255}`,
	),
	newRegexPlugin("GitLabTokenDetector", nil,
		`(?:glpat|gldt|glft|glsoat|glrt)-[A-Za-z0-9_\-]{20,50}`,
		`GR1348941[A-Za-z0-9_\-]{20,50}`,
		`glcbt-(?:[0-9a-fA-F]{2}_)?[A-Za-z0-9_\-]{20,50}`,
		`glptt-[0-9a-f]{40}`,
	),
	newRegexPlugin("IbmCloudIamDetector", nil,
		`(?i)(?:ibm|iam|cloud)[\w \-]{0,20}?(?:api[_\- ]?key|key|token|secret|password)[^\n:=]{0,20}[:=]\s*['"]?([a-zA-Z0-9_\-]{44})(?:[^a-zA-Z0-9_\-]|$)`,
	),
	newRegexPlugin("IbmCosHmacDetector", nil,
		`(?i)(?:secret[_\-]?access[_\-]?key|cos[_\-]?hmac)[^\n:=]{0,20}[:=]\s*['"]?([A-Za-z0-9]{32,48})(?:[^A-Za-z0-9]|$)`,
	),
	newRegexPlugin("IPPublicDetector", isPublicIP,
		`(?:^|[^\d.])((?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d))(?::\d{1,5})?(?:[^\d.]|$)`,
	),
	newRegexPlugin("JwtTokenDetector", isJWT,
		`eyJ[A-Za-z0-9_\-=]+\.[A-Za-z0-9_\-=]+\.?[A-Za-z0-9_\-.+/=]*`,
	),
	newRegexPlugin("MailchimpDetector", nil,
		`[0-9a-z]{32}-us[0-9]{1,2}`,
	),
	newRegexPlugin("NpmDetector", nil,
		`//.+/:_authToken=\s*((?:npm_[A-Za-z0-9]+)|(?:[A-Fa-f0-9\-]{36}))`,
		`npm_[A-Za-z0-9]{36}`,
	),
	newRegexPlugin("OpenAIDetector", nil,
		`sk-[A-Za-z0-9\-_]*[A-Za-z0-9]{20}T3BlbkFJ[A-Za-z0-9]{20}`,
		`sk-(?:proj-)?[A-Za-z0-9_\-]{32,}`,
	),
	newRegexPlugin("PrivateKeyDetector", nil,
		`-----BEGIN (?:(?:RSA|DSA|EC|OPENSSH|ENCRYPTED|PGP|SSH2 ENCRYPTED) )?PRIVATE KEY(?: BLOCK)?-----`,
		`PuTTY-User-Key-File-[23]`,
	),
	newRegexPlugin("PypiTokenDetector", nil,
		`pypi-Ag[A-Za-z0-9\-_]{30,}`,
	),
	newRegexPlugin("SendGridDetector", nil,
		`SG\.[A-Za-z0-9_\-]{22}\.[A-Za-z0-9_\-]{43}`,
	),
	newRegexPlugin("SlackDetector", nil,
		`(?i)xox(?:a|b|p|o|s|r)-(?:\d+-)+[a-z0-9]+`,
		`https://hooks\.slack\.com/services/T[A-Za-z0-9_]+/B[A-Za-z0-9_]+/[A-Za-z0-9_]+`,
	),
	newRegexPlugin("SoftlayerDetector", nil,
		`(?i)(?:softlayer|sl)[_\-]?(?:api)?[_\-]?(?:key|pwd|password|pass|token)[^\n:=]{0,20}[:=]\s*['"]?([a-z0-9]{64})(?:[^a-z0-9]|$)`,
		`(?i)https?://api\.softlayer\.com/soap/v3(?:\.1)?/([a-z0-9]{64})`,
	),
	newRegexPlugin("SquareOAuthDetector", nil,
		`sq0csp-[0-9A-Za-z\-_]{30,43}`,
	),
	newRegexPlugin("StripeDetector", nil,
		`(?:r|s)k_live_[0-9a-zA-Z]{24,99}`,
	),
	newRegexPlugin("TelegramBotTokenDetector", nil,
		`(?:^|[^0-9])(\d{8,10}:[0-9A-Za-z_\-]{35})(?:[^0-9A-Za-z_\-]|$)`,
	),
	newRegexPlugin("TwilioKeyDetector", nil,
		`AC[a-z0-9]{32}`,
		`SK[a-z0-9]{32}`,
	),
	newGitleaksPlugin(),
)

func buildRegistry(plugins ...Plugin) map[string]Plugin {
	m := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		m[p.Name()] = p
	}
	return m
}

// Plugins returns the registered plugin names in sorted order.
func Plugins() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the plugin registered under name.
func Lookup(name string) (Plugin, bool) {
	p, ok := registry[name]
	return p, ok
}

func isPublicIP(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified() || addr.IsMulticast())
}

// isJWT requires the first two segments to decode to JSON.
func isJWT(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts[:2] {
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part, "="))
		if err != nil || !json.Valid(raw) {
			return false
		}
	}
	return true
}
