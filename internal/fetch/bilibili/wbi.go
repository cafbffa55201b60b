package bilibili

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// mixinKeyEncTab is the fixed permutation the platform applies to the
// concatenated img and sub keys before signing.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

func mixinKey(imgKey, subKey string) string {
	raw := imgKey + subKey
	var b strings.Builder
	for _, idx := range mixinKeyEncTab {
		if idx < len(raw) {
			b.WriteByte(raw[idx])
		}
	}
	key := b.String()
	if len(key) > 32 {
		key = key[:32]
	}
	return key
}

// signQuery adds the wts timestamp and w_rid signature expected by WBI
// endpoints: values are stripped of "!'()*", the query is serialized with
// sorted keys, and the md5 of query+mixinKey becomes w_rid.
func signQuery(params url.Values, imgKey, subKey string, now time.Time) url.Values {
	key := mixinKey(imgKey, subKey)
	params.Set("wts", strconv.FormatInt(now.Unix(), 10))
	for name, values := range params {
		for i, v := range values {
			values[i] = stripUnsafe(v)
		}
		params[name] = values
	}
	// url.Values.Encode sorts by key, matching the signing canon.
	sum := md5.Sum([]byte(params.Encode() + key))
	params.Set("w_rid", hex.EncodeToString(sum[:]))
	return params
}

func stripUnsafe(v string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune("!'()*", r) {
			return -1
		}
		return r
	}, v)
}

// keyFromURL extracts the signing key from a wbi_img URL: the basename
// without its extension.
func keyFromURL(raw string) string {
	base := raw
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}
