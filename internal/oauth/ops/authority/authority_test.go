// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package authority

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestNewInfoFromAuthorityURI(t *testing.T) {
	tests := []struct {
		desc     string
		uri      string
		validate bool
		err      bool
		want     Info
	}{
		{
			desc: "worldwide cloud with tenant",
			uri:  "https://login.microsoftonline.com/utid",
			want: Info{
				Host:                  "login.microsoftonline.com",
				CanonicalAuthorityURI: "https://login.microsoftonline.com/utid/",
				AuthorityType:         AuthorityTypeAAD,
				Tenant:                "utid",
			},
		},
		{
			desc: "mixed case and surrounding whitespace",
			uri:  "  https://Login.MicrosoftOnline.com/Common  ",
			want: Info{
				Host:                  "login.microsoftonline.com",
				CanonicalAuthorityURI: "https://login.microsoftonline.com/common/",
				AuthorityType:         AuthorityTypeAAD,
				Tenant:                "common",
			},
		},
		{
			desc:     "trusted host validation passes",
			uri:      "https://login.microsoftonline.us/utid",
			validate: true,
			want: Info{
				Host:                  "login.microsoftonline.us",
				CanonicalAuthorityURI: "https://login.microsoftonline.us/utid/",
				AuthorityType:         AuthorityTypeAAD,
				Tenant:                "utid",
				ValidateAuthority:     true,
			},
		},
		{
			desc:     "unknown host rejected when validating",
			uri:      "https://evil.example.com/utid",
			validate: true,
			err:      true,
		},
		{
			desc: "http rejected",
			uri:  "http://login.microsoftonline.com/utid",
			err:  true,
		},
		{
			desc: "missing tenant segment",
			uri:  "https://login.microsoftonline.com",
			err:  true,
		},
	}

	for _, test := range tests {
		got, err := NewInfoFromAuthorityURI(test.uri, test.validate)
		switch {
		case err == nil && test.err:
			t.Errorf("TestNewInfoFromAuthorityURI(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestNewInfoFromAuthorityURI(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestNewInfoFromAuthorityURI(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestAliasesFor(t *testing.T) {
	got := AliasesFor("login.windows.net")
	want := []string{"login.microsoftonline.com", "login.windows.net", "login.microsoft.com", "sts.windows.net"}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestAliasesFor(known host): -want/+got:\n%s", diff)
	}

	got = AliasesFor("unknown.example.com")
	if diff := pretty.Compare([]string{"unknown.example.com"}, got); diff != "" {
		t.Errorf("TestAliasesFor(unknown host): -want/+got:\n%s", diff)
	}
}

func TestSameEnvironment(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"login.microsoftonline.com", "login.windows.net", true},
		{"login.microsoftonline.com", "login.microsoftonline.com", true},
		{"login.microsoftonline.com", "login.microsoftonline.us", false},
		{"login.chinacloudapi.cn", "login.microsoftonline.de", false},
	}
	for _, test := range tests {
		if got := SameEnvironment(test.a, test.b); got != test.want {
			t.Errorf("TestSameEnvironment(%s, %s): got %v, want %v", test.a, test.b, got, test.want)
		}
	}
}

func TestEndpoints(t *testing.T) {
	info, err := NewInfoFromAuthorityURI("https://login.microsoftonline.com/utid", false)
	if err != nil {
		t.Fatalf("TestEndpoints: %s", err)
	}
	got := info.Endpoints()
	if got.TokenEndpoint != "https://login.microsoftonline.com/utid/oauth2/v2.0/token" {
		t.Errorf("TestEndpoints: token endpoint: got %q", got.TokenEndpoint)
	}
	if got.AuthorizationEndpoint != "https://login.microsoftonline.com/utid/oauth2/v2.0/authorize" {
		t.Errorf("TestEndpoints: authorization endpoint: got %q", got.AuthorizationEndpoint)
	}
}

func TestWithTarget(t *testing.T) {
	home, err := NewInfoFromAuthorityURI("https://login.microsoftonline.com/home", false)
	if err != nil {
		t.Fatalf("TestWithTarget: %s", err)
	}
	guest, err := NewInfoFromAuthorityURI("https://login.microsoftonline.com/guest", false)
	if err != nil {
		t.Fatalf("TestWithTarget: %s", err)
	}

	params := NewAuthParams("client-id", home)
	retargeted := params.WithTarget(guest)

	if retargeted.AuthorityInfo.Tenant != "guest" {
		t.Errorf("TestWithTarget: tenant not retargeted: %+v", retargeted.AuthorityInfo)
	}
	if retargeted.Endpoints.TokenEndpoint == params.Endpoints.TokenEndpoint {
		t.Errorf("TestWithTarget: endpoints not rebuilt for the new authority")
	}
	if retargeted.ClientID != params.ClientID || retargeted.CorrelationID != params.CorrelationID {
		t.Errorf("TestWithTarget: client identity not preserved")
	}
	// The original is unchanged.
	if params.AuthorityInfo.Tenant != "home" {
		t.Errorf("TestWithTarget: WithTarget mutated its receiver")
	}
}
