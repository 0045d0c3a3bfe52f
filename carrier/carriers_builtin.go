package carrier

// Built-in carrier descriptors. Each carrier's script is a best-effort
// DOM probe: it looks for the carrier's "not found" message and, failing
// that, collects the rows of the status list. It reports no other
// failure reason, so rate limiting or blocking is not detected by these
// scripts. The Carrier Adapter classifies whatever reason the script
// returns (see adapter.go's classify).
func init() {
	Register(Descriptor{
		UID:                 "ctt",
		Name:                "CTT Correios de Portugal",
		TrackingURLTemplate: "https://www.cttexpresso.pt/track?q=%s",
		AccentColor:         "#d0006f",
		OutdatedPeriodDays:  60,
		ReadySelectors:      []string{".tracking-history", ".not-found-message"},
		Script:              statusListProbe,
	})

	Register(Descriptor{
		UID:                 "dhl",
		Name:                "DHL Express",
		TrackingURLTemplate: "https://www.dhl.com/global-en/home/tracking.html?tracking-id=%s",
		AccentColor:         "#ffcc00",
		OutdatedPeriodDays:  45,
		ReadySelectors:      []string{".c-tracking-result", ".c-tracking-not-found"},
		Script:              statusListProbe,
	})

	Register(Descriptor{
		UID:                 "correios-brazil",
		Name:                "Correios",
		TrackingURLTemplate: "https://rastreamento.correios.com.br/app/index.php?objeto=%s",
		AccentColor:         "#ffcb05",
		OutdatedPeriodDays:  90,
		ReadySelectors:      []string{"#resultado-rastreamento", ".mensagem-erro"},
		Script:              statusListProbe,
	})
}

// statusListProbe is shared by every built-in carrier above: it returns
// a JSON object the adapter decodes into a probeResult. Kept as one
// generic script for now since none of the built-in carriers need a
// bespoke extraction shape yet; per-carrier scripts belong in their own
// carriers_<uid>.go file the day one does.
const statusListProbe = `() => {
	function textIn(root, sel) {
		const el = root.querySelector(sel);
		return el ? el.textContent.trim() : "";
	}
	const notFound = textIn(document, ".not-found-message, .c-tracking-not-found, .mensagem-erro");
	if (notFound) {
		return JSON.stringify({reason: "parcel_not_found", message: notFound});
	}
	const rows = document.querySelectorAll(".tracking-history li, .c-tracking-result li, #resultado-rastreamento li");
	const events = [];
	rows.forEach(function(row) {
		events.push({
			timestamp: (row.getAttribute("data-timestamp") || null),
			location: textIn(row, ".location"),
			status_code: row.getAttribute("data-status") || "",
			description: row.textContent.trim(),
		});
	});
	return JSON.stringify({reason: "", events: events});
}`
