package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GroupByDisplayName resolves a group by exact display-name match. The
// returned count is the number of matches; callers are expected to flag
// ambiguity (count > 1); the first match is returned.
func (c *Client) GroupByDisplayName(ctx context.Context, name string) (*Group, int, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("displayName eq '%s'", escapeFilterValue(name)))

	groups, err := listAll[Group](ctx, c, "/groups", query)
	if err != nil {
		return nil, 0, err
	}
	if len(groups) == 0 {
		return nil, 0, &NotFoundError{Resource: "group", Key: name}
	}
	return &groups[0], len(groups), nil
}

// ListGroupMembers pages through a group's direct members and keeps only
// user entries.
func (c *Client) ListGroupMembers(ctx context.Context, groupID string) ([]User, error) {
	objects, err := listAll[directoryObject](ctx, c, fmt.Sprintf("/groups/%s/members", groupID), nil)
	if err != nil {
		return nil, err
	}

	var users []User
	for _, obj := range objects {
		if obj.ODataType != odataTypeUser {
			continue
		}
		users = append(users, User{
			ID:                obj.ID,
			DisplayName:       obj.DisplayName,
			UserPrincipalName: obj.UserPrincipalName,
		})
	}
	return users, nil
}

// UserByID resolves a user by object id, used when a member entry does not
// carry its principal name.
func (c *Client) UserByID(ctx context.Context, id string) (*User, error) {
	user, err := getObject[User](ctx, c, fmt.Sprintf("/users/%s", id), nil)
	if reqErr, ok := err.(*RequestError); ok && reqErr.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "user", Key: id}
	}
	return user, err
}

// ManagedDevicesByUPN resolves the Intune managed devices enrolled for a
// user principal name.
func (c *Client) ManagedDevicesByUPN(ctx context.Context, upn string) ([]ManagedDevice, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("userPrincipalName eq '%s'", escapeFilterValue(upn)))

	return listAll[ManagedDevice](ctx, c, "/deviceManagement/managedDevices", query)
}

// DeviceCategoryByDisplayName resolves an Intune device category by exact
// display-name match.
func (c *Client) DeviceCategoryByDisplayName(ctx context.Context, name string) (*DeviceCategory, error) {
	categories, err := listAll[DeviceCategory](ctx, c, "/deviceManagement/deviceCategories", nil)
	if err != nil {
		return nil, err
	}
	for i := range categories {
		if categories[i].DisplayName == name {
			return &categories[i], nil
		}
	}
	return nil, &NotFoundError{Resource: "device category", Key: name}
}

// AssignDeviceCategory associates a managed device with a device category
// via a reference update.
func (c *Client) AssignDeviceCategory(ctx context.Context, deviceID, categoryID string) error {
	body := map[string]string{
		"@odata.id": fmt.Sprintf("%s/%s/deviceManagement/deviceCategories/%s", c.endpoint, c.apiVersion, categoryID),
	}
	resp, err := c.Request(ctx, http.MethodPut, fmt.Sprintf("/deviceManagement/managedDevices/%s/deviceCategory/$ref", deviceID), nil, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ManagedDevice re-reads a managed device, used to verify a category
// assignment took effect.
func (c *Client) ManagedDevice(ctx context.Context, deviceID string) (*ManagedDevice, error) {
	device, err := getObject[ManagedDevice](ctx, c, fmt.Sprintf("/deviceManagement/managedDevices/%s", deviceID), nil)
	if reqErr, ok := err.(*RequestError); ok && reqErr.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "managed device", Key: deviceID}
	}
	return device, err
}
