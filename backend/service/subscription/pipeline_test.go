package subscription

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
)

const (
	wantSS     = "ss://MjAyMi1ibGFrZTMtYWVzLTEyOC1nY206Nlh0bDVleU9GTlo3M2kweGZIV2VDdz09@31.130.130.238:8388#✅ Резервный Moms"
	wantTrojan = "trojan://abc-123@instabotwebhook.ru:443?security=tls&type=ws&path=%2Ftrojanws&sni=instabotwebhook.ru&fp=chrome#✅ Альтернативный Moms"
)

func TestExtract_MixedPlainAndBase64(t *testing.T) {
	t.Parallel()

	body := strings.Join([]string{
		"  vless://a@h:1?type=tcp#one  ",
		"",
		// base64: two ss links + one vmess link
		"c3M6Ly9ZV1Z6T25CM0AxLjEuMS4xOjEjYQpzczovL1lXVnpPbkIzQDIuMi4yLjI6MiNiCnZtZXNzOi8vZXlKaFpHUWlPaUo0SW4wPQ==",
		"hy2://pw@h:443#h",
		"not base64 at all!!",
		"//79AIA=",                             // valid base64, not UTF-8
		"dHJvamFuOi8vcHdAaDo0NDM_c25pPXgjbj8-", // URL alphabet
	}, "\r\n")

	got := Extract(body)
	want := []string{
		"vless://a@h:1?type=tcp#one",
		"ss://YWVzOnB3@1.1.1.1:1#a",
		"ss://YWVzOnB3@2.2.2.2:2#b",
		"vmess://eyJhZGQiOiJ4In0=",
		"hy2://pw@h:443#h",
		"trojan://pw@h:443?sni=x#n?>",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExtract_EmptyBody(t *testing.T) {
	t.Parallel()

	if got := Extract(" \n\t\n"); len(got) != 0 {
		t.Fatalf("expected no links, got %q", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		link  string
		kind  LinkKind
		named bool
	}{
		{"vless://u@h:443?security=reality&type=tcp#x", KindReality, true},
		{"vless://u@h:443?security=reality", KindReality, false},
		{"vless://u@h:443?type=ws&security=tls#x", KindVlessWS, true},
		{"trojan://p@h:443?type=ws#x", KindTrojan, true},
		{"ss://abc@h:1#x", KindShadowsocks, true},
		{"vmess://abc", KindOther, false},
		{"hysteria2://p@h:443#x", KindOther, true},
		{"vless://u@h:443?type=grpc#x", KindOther, true},
	}
	for _, tc := range cases {
		got := Classify(tc.link)
		if got.Kind != tc.kind || got.Named != tc.named {
			t.Fatalf("%s: expected (%s,%v), got (%s,%v)", tc.link, tc.kind, tc.named, got.Kind, got.Named)
		}
	}
}

func TestClassify_SplitsOnLastHash(t *testing.T) {
	t.Parallel()

	got := Classify("trojan://p@h:443?x=1#a#b")
	if got.Base != "trojan://p@h:443?x=1#a" || got.Name != "b" {
		t.Fatalf("expected rsplit on last '#', got base=%q name=%q", got.Base, got.Name)
	}
}

func TestRewrite_Rules(t *testing.T) {
	t.Parallel()

	in := []string{
		"vless://u1@h:443?security=reality&type=tcp#Old",
		"vless://u2@h:443?type=ws&security=tls#Old",
		"trojan://pw@h:443?type=ws#Old",
		"ss://abc@h:1#Old",
		"ss://abc@h:2",
		"vmess://eyJ9",
		"hysteria2://pw@h:443#Keep",
		"vless://u3@h:443?type=ws",
		"vless://u4@h:443?security=reality",
	}
	got := Rewrite(in, DefaultLabels)

	want := []string{
		"vless://u1@h:443?security=reality&type=tcp&fragment=3,1,tlshello#✅ Основной Moms",
		"vless://u2@h:443?type=ws&security=tls#✅ Запасной Moms",
		"trojan://pw@h:443?type=ws#✅ Альтернативный Moms",
		"vmess://eyJ9",
		"hysteria2://pw@h:443#Keep",
		"vless://u3@h:443?type=ws",
		"vless://u4@h:443?security=reality&fragment=3,1,tlshello#✅ Основной Moms",
	}
	if !reflect.DeepEqual(got.Links, want) {
		t.Fatalf("expected %q, got %q", want, got.Links)
	}
	if got.Credential != "u4" {
		t.Fatalf("expected last vless credential u4, got %q", got.Credential)
	}
	if !got.HasTrojan {
		t.Fatalf("expected trojan flag")
	}
}

func TestRewrite_RealityIsIdempotent(t *testing.T) {
	t.Parallel()

	once := Rewrite([]string{"vless://u@h:443?security=reality#Name"}, DefaultLabels).Links
	twice := Rewrite(once, DefaultLabels).Links
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected idempotent rewrite, got %q then %q", once, twice)
	}
	if strings.Count(twice[0], "fragment=") != 1 {
		t.Fatalf("expected a single fragment parameter, got %q", twice[0])
	}
}

func TestRewrite_CredentialRequiresAt(t *testing.T) {
	t.Parallel()

	got := Rewrite([]string{"vless://u1@h:1", "vless://nouser", "vless://@h:1"}, DefaultLabels)
	if got.Credential != "u1" {
		t.Fatalf("expected credential u1, got %q", got.Credential)
	}
}

func TestTransform_RealityExample(t *testing.T) {
	t.Parallel()

	got := Transform("vless://abc-123@host:443?security=reality#Name", DefaultFallback(), DefaultLabels)
	want := []string{
		"vless://abc-123@host:443?security=reality&fragment=3,1,tlshello#✅ Основной Moms",
		wantTrojan,
		wantSS,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTransform_Base64ShadowsocksExample(t *testing.T) {
	t.Parallel()

	body := "c3M6Ly9ZV1Z6T25CM0AxLjEuMS4xOjEjYQpzczovL1lXVnpPbkIzQDIuMi4yLjI6MiNiCnZtZXNzOi8vZXlKaFpHUWlPaUo0SW4wPQ=="
	got := Transform(body, DefaultFallback(), DefaultLabels)
	want := []string{"vmess://eyJhZGQiOiJ4In0=", wantSS}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTransform_UpstreamTrojanSuppressesSynthesis(t *testing.T) {
	t.Parallel()

	got := Transform("vless://abc-123@h:443?type=ws#a\ntrojan://pw@h:443#b", DefaultFallback(), DefaultLabels)
	trojans := 0
	for _, l := range got {
		if strings.HasPrefix(l, "trojan://") {
			trojans++
			if !strings.HasPrefix(l, "trojan://pw@h:443") {
				t.Fatalf("expected upstream trojan to be kept, got %q", l)
			}
		}
	}
	if trojans != 1 {
		t.Fatalf("expected exactly one trojan link, got %d in %q", trojans, got)
	}
}

func TestTransform_Invariants(t *testing.T) {
	t.Parallel()

	bodies := []string{
		"",
		"vmess://x",
		"ss://a@h:1#x\nss://b@h:2#y\nss://c@h:3",
		"vless://id@h:1?type=ws#n",
		"trojan://p@h:1",
		"garbage\nvless://id@h:1?security=reality\nss://z@h:9#q",
	}
	for _, body := range bodies {
		links := Extract(body)
		rw := Rewrite(links, DefaultLabels)
		out := Synthesize(rw, DefaultFallback(), DefaultLabels)

		ss := 0
		trojan := false
		for _, l := range out {
			if strings.HasPrefix(l, "ss://") {
				ss++
				if l != wantSS {
					t.Fatalf("%q: unexpected shadowsocks link %q", body, l)
				}
			}
			if strings.HasPrefix(l, "trojan://") {
				trojan = true
			}
		}
		if ss != 1 {
			t.Fatalf("%q: expected exactly one shadowsocks link, got %d", body, ss)
		}
		wantTrojan := rw.HasTrojan || rw.Credential != ""
		if trojan != wantTrojan {
			t.Fatalf("%q: expected trojan=%v, got %v", body, wantTrojan, trojan)
		}
		if out[len(out)-1] != wantSS {
			t.Fatalf("%q: expected shadowsocks link last, got %q", body, out[len(out)-1])
		}
	}
}

func TestFallback_CustomHosts(t *testing.T) {
	t.Parallel()

	f := DefaultFallback()
	f.TrojanHost = "2001:db8::1"
	f.SSHost = "ss.example"
	f.SSPort = 9000

	if got := f.TrojanLink("id", "L"); !strings.HasPrefix(got, "trojan://id@[2001:db8::1]:443?") {
		t.Fatalf("expected bracketed ipv6 host, got %q", got)
	}
	if got := f.ShadowsocksLink("L"); !strings.Contains(got, "@ss.example:9000#L") {
		t.Fatalf("expected custom ss host, got %q", got)
	}
}

func TestRelayHeaders_AllowListOnly(t *testing.T) {
	t.Parallel()

	src := http.Header{}
	src.Set("Subscription-Userinfo", "upload=1; download=2; total=3; expire=4")
	src.Set("Profile-Title", "base64:TW9tcw==")
	src.Set("Profile-Update-Interval", "12")
	src.Set("Support-Url", "https://t.me/support")
	src.Set("Profile-Web-Page-Url", "https://example.com")
	src.Set("Content-Disposition", `attachment; filename="moms"`)
	src.Set("Content-Type", "application/octet-stream")
	src.Set("Set-Cookie", "a=b")

	dst := http.Header{}
	RelayHeaders(src, dst)

	if len(dst) != 6 {
		t.Fatalf("expected 6 relayed headers, got %d: %v", len(dst), dst)
	}
	if dst.Get("profile-title") != "base64:TW9tcw==" {
		t.Fatalf("expected profile-title verbatim, got %q", dst.Get("profile-title"))
	}
	if dst.Get("Content-Type") != "" || dst.Get("Set-Cookie") != "" {
		t.Fatalf("expected non-allow-listed headers dropped")
	}
}

func TestParseUserinfo(t *testing.T) {
	t.Parallel()

	u, ok := ParseUserinfo("upload=10; download=20, total=100; expire=1700000000")
	if !ok || u.Used() != 30 || u.Total != 100 || u.Expire != 1700000000 {
		t.Fatalf("unexpected usage: %+v ok=%v", u, ok)
	}

	if _, ok := ParseUserinfo("upload=1; total=2"); ok {
		t.Fatalf("expected missing download to fail")
	}
	if _, ok := ParseUserinfo("upload=9223372036854775807; download=1; total=1"); ok {
		t.Fatalf("expected overflow to fail")
	}
}
