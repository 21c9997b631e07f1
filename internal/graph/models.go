package graph

// Group is an Entra ID directory group.
type Group struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// User is an Entra ID user.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// ManagedDevice is an Intune-enrolled device.
type ManagedDevice struct {
	ID                        string `json:"id"`
	DeviceName                string `json:"deviceName"`
	UserPrincipalName         string `json:"userPrincipalName"`
	DeviceCategoryDisplayName string `json:"deviceCategoryDisplayName"`
}

// DeviceCategory is an Intune device category.
type DeviceCategory struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// directoryObject is the polymorphic member payload returned by the group
// members endpoint. The @odata.type discriminator identifies users.
type directoryObject struct {
	ODataType         string `json:"@odata.type"`
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

const odataTypeUser = "#microsoft.graph.user"
