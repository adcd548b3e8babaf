package catalog

import "github.com/shopspring/decimal"

// Built-in pricing table. 500 free credits per account correspond to 13
// EUR of usage at 0.026 EUR per credit; rates track the real cost of the
// upstream generation APIs.

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultMeta returns the built-in catalog-wide settings.
func DefaultMeta() Meta {
	return Meta{
		Currency:          "EUR",
		CurrencyPerCredit: dec("0.026"),
		RoundingStep:      dec("0.5"),
		InitialCredits:    dec("500"),
	}
}

func defaultSpecs() []Spec {
	return []Spec{
		{
			Key:         "chatgpt",
			DisplayName: "ChatGPT",
			Unit:        "message",
			Unmetered:   true,
		},
		{
			Key:         "topaz_video_upscale",
			DisplayName: "Video Upscale AI (Topaz video-upscale)",
			Unit:        "job",
			FlatRate:    dec("1.92"),
		},
		{
			Key:         "flux_kontext_pro",
			DisplayName: "Flux Kontext Pro",
			Unit:        "image",
			FlatRate:    dec("1.54"),
		},
		{
			Key:         "alibaba_wan_2_5",
			DisplayName: "Alibaba WAN 2.5",
			Unit:        "second",
			Variants: []VariantRate{
				{Name: "480p", Rate: dec("1.92")},
				{Name: "720p", Rate: dec("3.85")},
				{Name: "1080p", Rate: dec("5.77")},
			},
		},
		{
			Key:         "grok_2_image",
			DisplayName: "Grok 2 Image",
			Unit:        "image",
			FlatRate:    dec("2.69"),
		},
		{
			Key:         "seedream_4",
			DisplayName: "Seedream 4",
			Unit:        "image",
			FlatRate:    dec("1.15"),
		},
		{
			Key:         "image_upscaler",
			DisplayName: "Image Upscaler",
			Unit:        "image",
			Tiers: []Tier{
				{Max: dec("4"), Rate: dec("1.92")},
				{Max: dec("8"), Rate: dec("3.85")},
				{Max: dec("16"), Rate: dec("7.69")},
				{Max: dec("25"), Rate: dec("15.38"), OpenEnded: true},
			},
		},
		{
			Key:         "kling_ai_v2_1",
			DisplayName: "Kling AI v2.1",
			Unit:        "second",
			Variants: []VariantRate{
				{Name: "standard", Rate: dec("1.92")},
				{Name: "pro", Rate: dec("3.46")},
			},
		},
		{
			Key:         "sora_2",
			DisplayName: "SORA 2",
			Unit:        "second",
			FlatRate:    dec("3.85"),
		},
		{
			Key:         "nano_banana",
			DisplayName: "NanoBanana",
			Unit:        "image",
			FlatRate:    dec("1.5"),
		},
		{
			Key:         "google_veo_3_1",
			DisplayName: "Google VEO 3.1",
			Unit:        "second",
			Variants: []VariantRate{
				{Name: "without_audio", Rate: dec("7.69")},
				{Name: "with_audio", Rate: dec("15.38")},
			},
		},
		{
			Key:         "nano_banana_pro",
			DisplayName: "Nano Banana Pro",
			Unit:        "image",
			Variants: []VariantRate{
				{Name: "1K", Rate: dec("5.12")},
				{Name: "2K", Rate: dec("5.12")},
				{Name: "4K", Rate: dec("8.77")},
			},
		},
		{
			Key:         "gemini3_pro",
			DisplayName: "Gemini 3 Pro",
			Unit:        "message",
			Variants: []VariantRate{
				{Name: "low", Rate: dec("2.31")},
				{Name: "high", Rate: dec("4.62")},
			},
		},
		{
			Key:         "chatgpt51",
			DisplayName: "ChatGPT 5.1",
			Unit:        "message",
			Variants: []VariantRate{
				{Name: "none", Rate: dec("1.92")},
				{Name: "low", Rate: dec("3.85")},
				{Name: "medium", Rate: dec("7.69")},
				{Name: "high", Rate: dec("15.38")},
			},
		},
		{
			// Gemini publishes per-million rates with a premium above a
			// 200K-token prompt.
			Key:         "gemini3_pro_tokens",
			DisplayName: "Gemini 3 Pro (API)",
			Unit:        "token",
			Tokens: &TokenRates{
				Denomination:    PerMillionTokens,
				InputRate:       dec("1.85"),
				OutputRate:      dec("11.10"),
				Threshold:       200_000,
				InputRateAbove:  dec("3.70"),
				OutputRateAbove: dec("18.50"),
			},
		},
		{
			// OpenAI publishes per-thousand rates for this model.
			Key:         "chatgpt51_tokens",
			DisplayName: "ChatGPT 5.1 (API)",
			Unit:        "token",
			Tokens: &TokenRates{
				Denomination: PerThousandTokens,
				InputRate:    dec("0.0012"),
				OutputRate:   dec("0.0092"),
			},
		},
	}
}

// Default builds the built-in catalog. The table is a compile-time
// constant of the binary, so a construction failure is a programming
// error and panics.
func Default() *Catalog {
	c, err := New(DefaultMeta(), defaultSpecs())
	if err != nil {
		panic(err)
	}
	return c
}
