package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/procur/backend/internal/models"
)

func TestCreateGroupSetsOwnerMembership(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]any{
		"name":        "Steel Buyers Collective",
		"description": "Pooled steel procurement",
		"industry":    "Construction",
		"privacy":     "private",
		"maxMembers":  25,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	groupID := data["id"].(string)

	var membership models.GroupMembership
	if err := env.db.First(&membership, "group_id = ? AND user_id = ?", groupID, user.ID).Error; err != nil {
		t.Fatalf("expected owner membership: %v", err)
	}
	if membership.Role != models.GroupRoleOwner {
		t.Fatalf("expected owner role, got %s", membership.Role)
	}

	var group models.Group
	env.db.First(&group, "id = ?", groupID)
	if group.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %d", group.MemberCount)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)

	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"missing name", map[string]any{"description": "d", "industry": "i"}},
		{"missing description", map[string]any{"name": "n", "industry": "i"}},
		{"missing industry", map[string]any{"name": "n", "description": "d"}},
		{"invalid privacy", map[string]any{"name": "n", "description": "d", "industry": "i", "privacy": "secret"}},
		{"zero capacity", map[string]any{"name": "n", "description": "d", "industry": "i", "maxMembers": 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", tc.payload, authHeaders(token))
			assertStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestBrowseHidesNonPublicGroupsFromAnonymous(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)

	createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	createTestGroup(t, env.db, owner, models.GroupPrivacyPrivate, nil)
	createTestGroup(t, env.db, owner, models.GroupPrivacyInviteOnly, nil)

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/groups/", nil, nil)
	assertStatus(t, resp, http.StatusOK)

	data := decodeJSONMap(t, resp)["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("anonymous browse should see only the public group, got %d", len(data))
	}
}

func TestBrowseShowsMemberGroupsWithFlags(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	_, outsiderToken := createTestUser(t, env.db, "outsider@example.com", "password123", models.UserRoleUser)

	createTestGroup(t, env.db, owner, models.GroupPrivacyPrivate, nil)

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/groups/", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	data := decodeJSONMap(t, resp)["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("owner should see their private group, got %d entries", len(data))
	}
	entry := data[0].(map[string]any)
	if isMember, _ := entry["isMember"].(bool); !isMember {
		t.Fatal("expected isMember=true for the owner")
	}
	if role, _ := entry["userRole"].(string); role != "owner" {
		t.Fatalf("expected userRole owner, got %q", role)
	}

	resp = performJSONRequest(t, env.app, http.MethodGet, "/api/groups/", nil, authHeaders(outsiderToken))
	assertStatus(t, resp, http.StatusOK)
	data = decodeJSONMap(t, resp)["data"].([]any)
	if len(data) != 0 {
		t.Fatalf("outsider should not see the private group, got %d entries", len(data))
	}
}

func TestGetPrivateGroupInvisibleToNonMembers(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	_, outsiderToken := createTestUser(t, env.db, "outsider@example.com", "password123", models.UserRoleUser)

	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPrivate, nil)
	path := "/api/groups/" + group.ID.String()

	// Existence must not leak: 404, not 403.
	resp := performJSONRequest(t, env.app, http.MethodGet, path, nil, nil)
	assertStatus(t, resp, http.StatusNotFound)

	resp = performJSONRequest(t, env.app, http.MethodGet, path, nil, authHeaders(outsiderToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performJSONRequest(t, env.app, http.MethodGet, path, nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if _, ok := data["members"]; !ok {
		t.Fatal("members roster should be present for a member")
	}
}

func TestGetPublicGroupVisibleToAnonymous(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String(), nil, nil)
	assertStatus(t, resp, http.StatusOK)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if _, ok := data["members"]; ok {
		t.Fatal("anonymous callers should not receive the roster")
	}
}

func TestUpdateGroupRejectsPrivacyChange(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
		"privacy": "private",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "privacy cannot be changed after creation")
}

func TestUpdateGroupRejectsCapacityBelowRoster(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)

	for i := 0; i < 3; i++ {
		member, _ := createTestUser(t, env.db, fmt.Sprintf("member%d@example.com", i), "password123", models.UserRoleUser)
		addTestMember(t, env.db, group, member, models.GroupRoleMember)
	}

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
		"maxMembers": 2,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
		"maxMembers": 10,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
}

func TestUpdateGroupRequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	member, memberToken := createTestUser(t, env.db, "member@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	addTestMember(t, env.db, group, member, models.GroupRoleMember)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
		"name": "Renamed",
	}, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)
}

func TestUpdateDeactivatedGroupNotFound(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)

	resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	// Deactivated groups cannot be edited, even by their own admins.
	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
		"name": "Renamed",
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]any{
		"maxMembers": 10,
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusNotFound)

	var reloaded models.Group
	env.db.First(&reloaded, "id = ?", group.ID)
	if reloaded.Name != "Test Buying Group" {
		t.Fatalf("expected name unchanged, got %q", reloaded.Name)
	}
}

func TestDeleteGroupIsOwnerOnlySoftDelete(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	admin, adminToken := createTestUser(t, env.db, "admin@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	addTestMember(t, env.db, group, admin, models.GroupRoleAdmin)

	resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	var reloaded models.Group
	env.db.First(&reloaded, "id = ?", group.ID)
	if reloaded.IsActive {
		t.Fatal("delete should deactivate, not remove, the group")
	}

	// Deactivated groups disappear from reads.
	resp = performJSONRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String(), nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestJoinPublicGroupDirectly(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	joiner, token := createTestUser(t, env.db, "joiner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if status, _ := data["status"].(string); status != "joined" {
		t.Fatalf("expected joined, got %q", status)
	}

	var membership models.GroupMembership
	if err := env.db.First(&membership, "group_id = ? AND user_id = ?", group.ID, joiner.ID).Error; err != nil {
		t.Fatalf("expected membership: %v", err)
	}
	if membership.Role != models.GroupRoleMember {
		t.Fatalf("direct join grants member role, got %s", membership.Role)
	}

	var reloaded models.Group
	env.db.First(&reloaded, "id = ?", group.ID)
	if reloaded.MemberCount != 2 {
		t.Fatalf("expected member count 2, got %d", reloaded.MemberCount)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusConflict)
}

func TestJoinPublicGroupRespectsCapacity(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	two := 2
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, &two)

	_, firstToken := createTestUser(t, env.db, "first@example.com", "password123", models.UserRoleUser)
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", nil, authHeaders(firstToken))
	assertStatus(t, resp, http.StatusCreated)

	_, secondToken := createTestUser(t, env.db, "second@example.com", "password123", models.UserRoleUser)
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", nil, authHeaders(secondToken))
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "group is full")

	var count int64
	env.db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected exactly 2 memberships, got %d", count)
	}
}

func TestJoinPrivateGroupCreatesPendingRequest(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	requester, token := createTestUser(t, env.db, "requester@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPrivate, nil)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", map[string]any{
		"message": "We buy the same alloys",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)

	data := decodeJSONMap(t, resp)["data"].(map[string]any)
	if status, _ := data["status"].(string); status != "pending_approval" {
		t.Fatalf("expected pending_approval, got %q", status)
	}

	var request models.JoinRequest
	if err := env.db.First(&request, "group_id = ? AND user_id = ?", group.ID, requester.ID).Error; err != nil {
		t.Fatalf("expected join request row: %v", err)
	}
	if request.Status != models.JoinRequestStatusPending {
		t.Fatalf("expected pending status, got %s", request.Status)
	}

	// No membership until an admin approves.
	var memberCount int64
	env.db.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", group.ID, requester.ID).
		Count(&memberCount)
	if memberCount != 0 {
		t.Fatal("join request must not create a membership")
	}

	// The owner gets notified.
	waitForNotifications(t, env.db, owner.ID, 1)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "a pending join request already exists")
}

func TestJoinInactiveGroup(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	_, token := createTestUser(t, env.db, "joiner@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPrivate, nil)
	env.db.Model(group).Update("is_active", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestLeaveGroup(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	member, memberToken := createTestUser(t, env.db, "member@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	addTestMember(t, env.db, group, member, models.GroupRoleMember)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/leave", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "owner cannot leave the group")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/leave", nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusOK)

	var reloaded models.Group
	env.db.First(&reloaded, "id = ?", group.ID)
	if reloaded.MemberCount != 1 {
		t.Fatalf("expected member count back to 1, got %d", reloaded.MemberCount)
	}
}

func TestRemoveMemberRules(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	adminA, adminAToken := createTestUser(t, env.db, "admin-a@example.com", "password123", models.UserRoleUser)
	adminB, _ := createTestUser(t, env.db, "admin-b@example.com", "password123", models.UserRoleUser)
	member, memberToken := createTestUser(t, env.db, "member@example.com", "password123", models.UserRoleUser)

	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	addTestMember(t, env.db, group, adminA, models.GroupRoleAdmin)
	addTestMember(t, env.db, group, adminB, models.GroupRoleAdmin)
	addTestMember(t, env.db, group, member, models.GroupRoleMember)

	base := "/api/groups/" + group.ID.String() + "/members/"

	// A plain member cannot remove anyone.
	resp := performJSONRequest(t, env.app, http.MethodDelete, base+adminA.ID.String(), nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)

	// Nobody removes the owner.
	resp = performJSONRequest(t, env.app, http.MethodDelete, base+owner.ID.String(), nil, authHeaders(adminAToken))
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "cannot remove group owner")

	// Admins cannot remove other admins.
	resp = performJSONRequest(t, env.app, http.MethodDelete, base+adminB.ID.String(), nil, authHeaders(adminAToken))
	assertStatus(t, resp, http.StatusForbidden)

	// Admins can remove members; the count follows.
	resp = performJSONRequest(t, env.app, http.MethodDelete, base+member.ID.String(), nil, authHeaders(adminAToken))
	assertStatus(t, resp, http.StatusOK)

	var reloaded models.Group
	env.db.First(&reloaded, "id = ?", group.ID)
	if reloaded.MemberCount != 3 {
		t.Fatalf("expected member count 3 after removal, got %d", reloaded.MemberCount)
	}

	// The owner can remove admins.
	resp = performJSONRequest(t, env.app, http.MethodDelete, base+adminB.ID.String(), nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
}

func TestUpdateMemberRole(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	member, _ := createTestUser(t, env.db, "member@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	addTestMember(t, env.db, group, member, models.GroupRoleMember)

	path := "/api/groups/" + group.ID.String() + "/members/" + member.ID.String()

	resp := performJSONRequest(t, env.app, http.MethodPut, path, map[string]any{"role": "admin"}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	var membership models.GroupMembership
	env.db.First(&membership, "group_id = ? AND user_id = ?", group.ID, member.ID)
	if membership.Role != models.GroupRoleAdmin {
		t.Fatalf("expected admin role, got %s", membership.Role)
	}

	// Owner role cannot be assigned through this endpoint.
	resp = performJSONRequest(t, env.app, http.MethodPut, path, map[string]any{"role": "owner"}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusBadRequest)

	ownerPath := "/api/groups/" + group.ID.String() + "/members/" + owner.ID.String()
	resp = performJSONRequest(t, env.app, http.MethodPut, ownerPath, map[string]any{"role": "member"}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusForbidden)
}

func TestMembersListRequiresMembership(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)
	_, outsiderToken := createTestUser(t, env.db, "outsider@example.com", "password123", models.UserRoleUser)
	group := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)

	path := "/api/groups/" + group.ID.String() + "/members"

	resp := performJSONRequest(t, env.app, http.MethodGet, path, nil, authHeaders(outsiderToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, env.app, http.MethodGet, path, nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	data := decodeJSONMap(t, resp)["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 member, got %d", len(data))
	}
}

func TestBrowseFilters(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "owner@example.com", "password123", models.UserRoleUser)

	g1 := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	env.db.Model(g1).Updates(map[string]any{"name": "Steel Alliance", "industry": "Construction"})
	g2 := createTestGroup(t, env.db, owner, models.GroupPrivacyPublic, nil)
	env.db.Model(g2).Updates(map[string]any{"name": "Office Supplies Pool", "industry": "Services"})

	resp := performJSONRequest(t, env.app, http.MethodGet, "/api/groups/?industry=Construction", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	if data := decodeJSONMap(t, resp)["data"].([]any); len(data) != 1 {
		t.Fatalf("industry filter: expected 1 group, got %d", len(data))
	}

	resp = performJSONRequest(t, env.app, http.MethodGet, "/api/groups/?search=steel", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	if data := decodeJSONMap(t, resp)["data"].([]any); len(data) != 1 {
		t.Fatalf("search filter: expected 1 group, got %d", len(data))
	}
}
