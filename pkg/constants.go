package shared

const (
	ProjectID = "gravacoach-project" // Can be overridden by env var in main if needed

	ProviderWhoop = "whoop"

	WhoopAPIBase  = "https://api.prod.whoop.com/developer/v2"
	WhoopAuthURL  = "https://api.prod.whoop.com/oauth/oauth2/auth"
	WhoopTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"
	WhoopScope    = "offline read:cycles read:recovery read:sleep read:workout read:profile"

	CollectionUsers       = "users"
	CollectionCredentials = "credentials"
)
