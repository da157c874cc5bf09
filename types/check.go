package types

// CheckResult captures the outcome of a single named check.
// Results are immutable once produced.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string // human-readable explanation, e.g. "expected clocksource hyperv_clocksource_tsc_page, found acpi_pm"
}
