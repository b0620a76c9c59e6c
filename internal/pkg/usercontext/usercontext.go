package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated wallet for a request
type UserContext struct {
	AccountID     uint   `json:"account_id"`
	WalletAddress string `json:"wallet_address"`
	IsLoggedIn    bool   `json:"is_logged_in"`
}

// Set stores the context and the flat compatibility locals.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyAccountID, uc.AccountID)
	c.Locals(KeyWallet, uc.WalletAddress)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

// IsLoggedIn checks if the current request carries a valid session token
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetAccountID returns the current account ID, or 0 if not logged in
func GetAccountID(c *fiber.Ctx) uint {
	return GetUserContext(c).AccountID
}

func GetWallet(c *fiber.Ctx) string {
	return GetUserContext(c).WalletAddress
}
