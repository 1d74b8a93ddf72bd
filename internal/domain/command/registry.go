package command

const (
	Start     = "start"
	Users     = "users"
	Broadcast = "broadcast"
)

// AllCommands contains all available bot commands
var AllCommands = CommandSlice{
	{Name: Start, Description: "Start the bot", Role: RolePublic},
	{Name: Users, Description: "Count bot users", Role: RoleAdmin},
	{Name: Broadcast, Description: "Broadcast the replied message to all users", Role: RoleAdmin},
}

// GetPublicCommands returns all commands available to public users
func GetPublicCommands() CommandSlice {
	return AllCommands.ByRole(RolePublic)
}

// GetAdminCommands returns all admin-only commands
func GetAdminCommands() CommandSlice {
	return AllCommands.ByRole(RoleAdmin)
}
