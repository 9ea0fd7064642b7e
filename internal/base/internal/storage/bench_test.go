// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/crosscloudid/tokencache/internal/oauth/ops/accesstokens"
	"github.com/crosscloudid/tokencache/internal/oauth/ops/authority"
	"github.com/montanaflynn/stats"
)

// populateBench fills the cache with users*tokensPerUser access tokens, one
// account per user, the shape a long-lived multi-account process ends up with.
func populateBench(b *testing.B, m *Manager, users, tokensPerUser int) {
	b.Helper()
	for user := 0; user < users; user++ {
		hid := fmt.Sprintf("uid%d.utid%d", user, user)
		ap := authority.AuthParams{
			AuthorityInfo: authority.Info{Host: "login.microsoftonline.com", Tenant: fmt.Sprintf("utid%d", user)},
			ClientID:      "bench-client",
			HomeAccountID: hid,
		}
		for token := 0; token < tokensPerUser; token++ {
			_, err := m.Write(context.Background(), ap, accesstokens.TokenResponse{
				AccessToken:   fmt.Sprintf("access%d-%d", user, token),
				RefreshToken:  fmt.Sprintf("refresh%d", user),
				GrantedScopes: []string{fmt.Sprintf("scope%d", token)},
				ExpiresOn:     time.Now().Add(time.Hour),
				ExtExpiresOn:  time.Now().Add(time.Hour),
				ClientInfo:    accesstokens.ClientInfo{UID: fmt.Sprintf("uid%d", user), UTID: fmt.Sprintf("utid%d", user)},
				IDToken:       accesstokens.IDToken{Oid: "oid", RawToken: "x.e30"},
			})
			if err != nil {
				b.Fatalf("populateBench: %s", err)
			}
		}
	}
}

func benchmarkRead(b *testing.B, users, tokensPerUser int) {
	m := New(nil)
	populateBench(b, m, users, tokensPerUser)

	ap := authority.AuthParams{
		AuthorityInfo: authority.Info{Host: "login.microsoftonline.com", Tenant: "utid0"},
		ClientID:      "bench-client",
		HomeAccountID: "uid0.utid0",
		Scopes:        []string{"scope0"},
	}

	durations := make([]float64, 0, b.N)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := time.Now()
		if _, err := m.Read(context.Background(), ap); err != nil {
			b.Fatalf("benchmarkRead: %s", err)
		}
		durations = append(durations, float64(time.Since(s)))
	}
	b.StopTimer()

	if median, err := stats.Median(durations); err == nil {
		b.ReportMetric(median/float64(time.Microsecond), "median-µs/op")
	}
	if p95, err := stats.Percentile(durations, 95); err == nil {
		b.ReportMetric(p95/float64(time.Microsecond), "p95-µs/op")
	}
}

func BenchmarkReadSmallCache(b *testing.B) { benchmarkRead(b, 1, 10) }
func BenchmarkReadManyUsers(b *testing.B)  { benchmarkRead(b, 100, 10) }
func BenchmarkReadManyTokens(b *testing.B) { benchmarkRead(b, 10, 100) }

func BenchmarkRemoveAccount(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		m := New(nil)
		populateBench(b, m, 10, 10)
		b.StartTimer()
		if _, err := m.RemoveAccount(context.Background(), "uid0.utid0"); err != nil {
			b.Fatalf("BenchmarkRemoveAccount: %s", err)
		}
	}
}
