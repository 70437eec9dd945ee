// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/warden/internal/auth"
	wardenpg "github.com/holomush/warden/internal/auth/postgres"
)

const password = "Passw0rd!"

func call(method, path, token string, body any, out any) int {
	var payload bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&payload).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, &payload)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}
	return resp.StatusCode
}

type envelope struct {
	IsSuccess bool                `json:"isSuccess"`
	Message   string              `json:"message"`
	ID        string              `json:"id"`
	Token     string              `json:"token"`
	Errors    map[string][]string `json:"errors"`
}

func register(email string) string {
	var resp envelope
	status := call(http.MethodPost, "/account/register", "", map[string]any{
		"email": email, "fullName": "Test User", "phoneNumber": "", "password": password,
	}, &resp)
	Expect(status).To(Equal(http.StatusOK), "register %s: %+v", email, resp)
	return resp.ID
}

func login(email string) string {
	var resp envelope
	status := call(http.MethodPost, "/account/login", "", map[string]any{
		"email": email, "password": password,
	}, &resp)
	Expect(status).To(Equal(http.StatusOK))
	return resp.Token
}

func grantAdmin(userID string) {
	roles := wardenpg.NewRoleRepository(env.pool)
	admin, err := roles.GetRoleByName(env.ctx, auth.RoleAdmin)
	Expect(err).NotTo(HaveOccurred())
	Expect(roles.AssignRole(env.ctx, ulid.MustParse(userID), admin.ID)).To(Succeed())
}

var _ = Describe("Account flows", func() {
	BeforeEach(resetData)

	It("registers, logs in and reads the caller's detail", func() {
		id := register("ada@example.com")
		token := login("ADA@example.com")

		var detail auth.UserDetail
		Expect(call(http.MethodGet, "/account/detail", token, nil, &detail)).To(Equal(http.StatusOK))
		Expect(detail.ID).To(Equal(id))
		Expect(detail.Email).To(Equal("ada@example.com"))
		Expect(detail.Roles).To(ConsistOf(auth.RoleUser))
	})

	It("refuses anonymous registration into Admin", func() {
		Expect(call(http.MethodPost, "/account/register", "", map[string]any{
			"email": "mallory@example.com", "fullName": "Mallory", "password": password,
			"roles": []string{auth.RoleAdmin},
		}, nil)).To(Equal(http.StatusUnauthorized))

		_, err := wardenpg.NewUserRepository(env.pool).GetByEmail(env.ctx, "mallory@example.com")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("rejects a revoked token after logout", func() {
		register("bob@example.com")
		token := login("bob@example.com")

		Expect(call(http.MethodPost, "/account/logout", token, nil, nil)).To(Equal(http.StatusOK))
		Expect(call(http.MethodGet, "/account/detail", token, nil, nil)).To(Equal(http.StatusUnauthorized))
	})

	It("lets exactly one concurrent registration of an email succeed", func() {
		const attempts = 10
		var created, duplicate atomic.Int32
		var wg sync.WaitGroup

		for range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				var resp envelope
				switch call(http.MethodPost, "/account/register", "", map[string]any{
					"email": "race@example.com", "fullName": "Racer", "password": password,
				}, &resp) {
				case http.StatusOK:
					created.Add(1)
				case http.StatusBadRequest:
					duplicate.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(created.Load()).To(Equal(int32(1)))
		Expect(duplicate.Load()).To(Equal(int32(attempts - 1)))

		var users []auth.UserDetail
		token := login("race@example.com")
		Expect(call(http.MethodGet, "/account", token, nil, &users)).To(Equal(http.StatusOK))
		Expect(users).To(HaveLen(1))
	})
})

var _ = Describe("Role flows", func() {
	var adminToken, memberID string

	BeforeEach(func() {
		resetData()
		adminID := register("admin@example.com")
		grantAdmin(adminID)
		adminToken = login("admin@example.com")
		memberID = register("member@example.com")
	})

	It("creates, assigns, lists, revokes and deletes a role", func() {
		var created envelope
		Expect(call(http.MethodPost, "/roles", adminToken, map[string]string{"roleName": "Moderator"}, &created)).
			To(Equal(http.StatusOK))
		Expect(created.Message).To(Equal("Role Created successfully"))

		Expect(call(http.MethodPost, "/roles/assign", adminToken,
			map[string]string{"userId": memberID, "roleId": created.ID}, nil)).To(Equal(http.StatusOK))

		var roles []auth.RoleSummary
		Expect(call(http.MethodGet, "/roles", adminToken, nil, &roles)).To(Equal(http.StatusOK))
		counts := map[string]int{}
		for _, r := range roles {
			counts[r.Name] = r.TotalUsers
		}
		Expect(counts).To(HaveKeyWithValue("Moderator", 1))

		Expect(call(http.MethodPost, "/roles/revoke", adminToken,
			map[string]string{"userId": memberID, "roleId": created.ID}, nil)).To(Equal(http.StatusOK))
		Expect(call(http.MethodDelete, "/roles/"+created.ID, adminToken, nil, nil)).To(Equal(http.StatusOK))
		Expect(call(http.MethodDelete, "/roles/"+created.ID, adminToken, nil, nil)).To(Equal(http.StatusNotFound))
	})

	It("forbids role management without the permission", func() {
		memberToken := login("member@example.com")
		Expect(call(http.MethodPost, "/roles", memberToken, map[string]string{"roleName": "Sneaky"}, nil)).
			To(Equal(http.StatusForbidden))
	})

	It("keeps a single membership under concurrent assignment", func() {
		var created envelope
		Expect(call(http.MethodPost, "/roles", adminToken, map[string]string{"roleName": "Editor"}, &created)).
			To(Equal(http.StatusOK))

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				status := call(http.MethodPost, "/roles/assign", adminToken,
					map[string]string{"userId": memberID, "roleId": created.ID}, nil)
				Expect(status).To(Equal(http.StatusOK), fmt.Sprintf("attempt %d", i))
			}()
		}
		wg.Wait()

		var count int
		Expect(env.pool.QueryRow(env.ctx,
			"SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND role_id = $2",
			memberID, created.ID,
		).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))
	})
})
