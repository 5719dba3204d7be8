package email

// Config holds outbound email settings. Postmark tokens are optional: without
// them the dev sender writes messages to DevDir instead.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"billing@localhost"`
	SupportEmail         string `env:"EMAIL_SUPPORT" envDefault:"support@localhost"`
	ProductName          string `env:"EMAIL_PRODUCT_NAME" envDefault:"Billing"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// PostmarkEnabled reports whether both Postmark tokens are configured.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
