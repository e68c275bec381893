package rewrite

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"subaggr/internal/hostlist"
	"subaggr/internal/util"
)

// ssPattern matches ss://<userinfo>[@<host>:<port>][#<name>]. Links without
// an explicit host section cannot be relocated and are left alone.
var ssPattern = regexp.MustCompile(`^ss://([^@#]+)(@([^:]+):(\d+))?(#(.*))?$`)

func rewriteSS(uri, host string, index int) (string, error) {
	m := ssPattern.FindStringSubmatch(uri)
	if m == nil {
		return uri, nil
	}
	userinfo, server, port, name := m[1], m[3], m[4], m[6]
	if server == "" || port == "" {
		return uri, nil
	}

	newName := "SS" + suffix(index)
	if name != "" {
		decoded, err := url.PathUnescape(name)
		if err != nil {
			return "", fmt.Errorf("decode ss name: %w", err)
		}
		newName = decoded + suffix(index)
	}

	return "ss://" + userinfo + "@" + hostlist.FormatForURL(host) + ":" + port + "#" + util.EncodeURIComponent(newName), nil
}

func rewriteSSR(uri, host string) (string, error) {
	payload, variant, err := decodeBase64(strings.TrimPrefix(uri, "ssr://"))
	if err != nil {
		return "", fmt.Errorf("decode ssr: %w", err)
	}

	parts := strings.Split(string(payload), ":")
	if len(parts) < 6 {
		return "", errTooShort
	}
	parts[0] = hostlist.StripBrackets(host)

	return "ssr://" + variant.encoding().EncodeToString([]byte(strings.Join(parts, ":"))), nil
}
