package launchpad

// SampleMints returns the bundled fallback candidates, used when discovery
// fails or comes back empty. Established tokens, so every screening stage
// has real data to chew on.
func SampleMints() []string {
	return []string{
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC
		"So11111111111111111111111111111111111111112",  // wSOL
		"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", // USDT
		"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", // BONK
		"7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr", // POPCAT
	}
}
