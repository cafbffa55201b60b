package bilibili

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMixinKey(t *testing.T) {
	key := mixinKey("7cd084941338484aae1ad9425b84077c", "4932caff0ff746eab6f01bf08b70ac45")
	require.Equal(t, "ea1db124af3c7062474693fa704f4ff8", key)
	require.Len(t, key, 32)
}

func TestSignQuery(t *testing.T) {
	params := url.Values{}
	params.Set("foo", "one one four")
	params.Set("bar", "五一四")
	params.Set("zab", "1919810")

	signed := signQuery(params,
		"7cd084941338484aae1ad9425b84077c",
		"4932caff0ff746eab6f01bf08b70ac45",
		time.Unix(1702204169, 0))

	require.Equal(t, "1702204169", signed.Get("wts"))
	require.Equal(t, "e852314935a9e2ae3ea50ffec5d990fa", signed.Get("w_rid"))
}

func TestSignQueryStripsUnsafeValueChars(t *testing.T) {
	params := url.Values{}
	params.Set("q", "it's (really) cool!*")
	signed := signQuery(params, "img", "sub", time.Unix(1, 0))
	require.Equal(t, "its really cool", signed.Get("q"))
}

func TestKeyFromURL(t *testing.T) {
	key := keyFromURL("https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png")
	require.Equal(t, "7cd084941338484aae1ad9425b84077c", key)
	require.Equal(t, "", keyFromURL(""))
}

func TestExtractIDs(t *testing.T) {
	bvid, avid, page := extractIDs("https://www.bilibili.com/video/BV19e4y1q7JJ?p=3&spm_id_from=x")
	require.Equal(t, "BV19e4y1q7JJ", bvid)
	require.Equal(t, "", avid)
	require.Equal(t, 3, page)

	bvid, avid, page = extractIDs("https://www.bilibili.com/video/av170001")
	require.Equal(t, "", bvid)
	require.Equal(t, "av170001", avid)
	require.Equal(t, 0, page)
}
