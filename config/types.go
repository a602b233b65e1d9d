package config

// Params mirrors core.Params with amounts written in whole units ("1",
// "0.5") so operators never deal in base units.
type Params struct {
	AirlineFunding    string `toml:"AirlineFunding"`
	PolicyCap         string `toml:"PolicyCap"`
	PayoutBps         uint64 `toml:"PayoutBps"`
	BootstrapAirlines int    `toml:"BootstrapAirlines"`
	OracleMinStake    string `toml:"OracleMinStake"`
	OracleIndexCount  int    `toml:"OracleIndexCount"`
	OracleIndexSpace  int    `toml:"OracleIndexSpace"`
	OracleQuorum      int    `toml:"OracleQuorum"`
}

// Allocation credits an account when the node starts on an empty data
// directory.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// RPC tunes the HTTP query surface.
type RPC struct {
	// RateLimit is the sustained requests per second allowed per client;
	// zero disables limiting.
	RateLimit float64 `toml:"RateLimit"`
	Burst     int     `toml:"Burst"`
	// Faucet enables the fs_faucet method for development networks.
	Faucet bool `toml:"Faucet"`
	// FaucetSecret is the HMAC key for bearer tokens fs_faucet accepts.
	// Empty leaves the faucet open.
	FaucetSecret string `toml:"FaucetSecret"`
	TokenIssuer  string `toml:"TokenIssuer"`
}

// Telemetry configures the OpenTelemetry exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Logging configures the structured logger.
type Logging struct {
	Level string `toml:"Level"`
	File  string `toml:"File"`
}
