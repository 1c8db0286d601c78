package metrics

// DefaultExclusionConfig returns the curated anomaly lists for the BIP AI dataset.
// Every category is enabled; an exclusions file replaces this wholesale.
func DefaultExclusionConfig() ExclusionConfig {
	return ExclusionConfig{
		// parked in progress for weeks then batch-closed, plus hand-picked outliers
		ManualOutlier: ExclusionRule{
			Enabled: true,
			Keys: []string{
				"BIP-25393", "BIP-25703", "BIP-26294",
				"BIP-26538", "BIP-27314", "BIP-28723",
				"BIP-26043", "BIP-28160", "BIP-28942", "BIP-27706",
				"BIP-29078", "BIP-28906", "BIP-26543", "BIP-26721",
				"BIP-26503", "BIP-26502", "BIP-26027",
				"BIP-26790", "BIP-26789", "BIP-26788", "BIP-26572",
				"BIP-26778", "BIP-26787", "BIP-26793",
			},
		},
		NoEstimate: ExclusionRule{
			Enabled: true,
			Keys: []string{
				"BIP-30535", "BIP-30530", "BIP-30351", "BIP-30306", "BIP-29982",
				"BIP-29937", "BIP-29936", "BIP-29536", "BIP-29529", "BIP-29147",
				"BIP-28949", "BIP-28766", "BIP-25707", "BIP-25706", "BIP-25705",
				"BIP-25704", "BIP-25703", "BIP-25393", "BIP-25392", "BIP-25110",
				"BIP-24894", "BIP-23877",
			},
		},
		CanceledTransit: ExclusionRule{
			Enabled: true,
			Keys: []string{
				"BIP-26007", "BIP-26049", "BIP-26059", "BIP-26061", "BIP-26085",
				"BIP-26281", "BIP-26305", "BIP-26321", "BIP-26323", "BIP-26471",
				"BIP-26509", "BIP-27270", "BIP-27271", "BIP-27304", "BIP-27305",
				"BIP-27693", "BIP-28217", "BIP-28694", "BIP-28898", "BIP-28941",
				"BIP-29072", "BIP-29102", "BIP-29172", "BIP-29179", "BIP-30550",
				"BIP-30901", "BIP-30902",
			},
		},
		// same-day reopens are minor corrections and stay in
		MultiDayReopen: ExclusionRule{
			Enabled: true,
			Keys: []string{
				"BIP-26995", "BIP-27975", "BIP-28231", "BIP-28721", "BIP-30515",
			},
		},
		KeywordExcluded: ExclusionRule{
			Enabled:  true,
			Keywords: []string{"adhoc support", "on call", "shadow"},
		},
	}
}
