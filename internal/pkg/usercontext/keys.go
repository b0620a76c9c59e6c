package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	KeyAccountID   = "account_id"
	KeyWallet      = "wallet_address"
)
