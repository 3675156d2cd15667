// Package region holds the fixed table of scan regions and the rules that
// pick one for a target. Every function is total: unknown input yields the
// default region, never an error.
package region

import (
	"net/url"
	"strings"
	"time"
)

type Code string

const (
	USEast1  Code = "us-east-1"
	APSouth1 Code = "ap-south-1"
	Default       = USEast1
)

// Region is a scan datacenter and the static IP its scanners egress from.
type Region struct {
	Code     Code   `json:"code"`
	Name     string `json:"name"`
	Location string `json:"location"`
	StaticIP string `json:"staticIp"`
}

var table = []Region{
	{Code: USEast1, Name: "United States", Location: "N. Virginia", StaticIP: "44.206.201.117"},
	{Code: APSouth1, Name: "India", Location: "Mumbai", StaticIP: "13.203.153.119"},
}

// southAsianTLDs route to the Mumbai region. Second-level forms such as
// co.in are covered by their country suffix.
var southAsianTLDs = []string{"in", "lk", "bd", "np", "pk", "bt", "mv", "af"}

var southAsianZones = []string{
	"Asia/Kolkata", "Asia/Calcutta", "Asia/Colombo", "Asia/Dhaka",
	"Asia/Kathmandu", "Asia/Katmandu", "Asia/Karachi", "Asia/Thimphu",
	"Indian/Maldives", "Asia/Kabul",
}

var southAsianLocales = []string{"IN", "LK", "BD", "NP", "PK", "BT", "MV", "AF"}

// All returns a copy of the region table.
func All() []Region {
	return append([]Region(nil), table...)
}

// Valid reports whether code names a known region.
func Valid(code Code) bool {
	for _, r := range table {
		if r.Code == code {
			return true
		}
	}
	return false
}

// GetRegionInfo returns the region for code, or the default region.
func GetRegionInfo(code Code) Region {
	for _, r := range table {
		if r.Code == code {
			return r
		}
	}
	return table[0]
}

// GetAllStaticIPs lists every scanner egress IP, for allow-listing.
func GetAllStaticIPs() []string {
	ips := make([]string, 0, len(table))
	for _, r := range table {
		ips = append(ips, r.StaticIP)
	}
	return ips
}

// DetectUserRegion infers the client's region from its time zone and locale
// tag (such as "en-IN" or "hi_IN.UTF-8"). A nil loc means time.Local.
func DetectUserRegion(loc *time.Location, locale string) Code {
	if loc == nil {
		loc = time.Local
	}
	for _, z := range southAsianZones {
		if loc.String() == z {
			return APSouth1
		}
	}

	tag := strings.SplitN(locale, ".", 2)[0]
	tag = strings.ReplaceAll(tag, "_", "-")
	parts := strings.Split(tag, "-")
	if len(parts) > 1 {
		country := strings.ToUpper(parts[len(parts)-1])
		for _, c := range southAsianLocales {
			if country == c {
				return APSouth1
			}
		}
	}
	return Default
}

// SelectOptimalRegion picks the scan region for targetURL. A South Asian
// country-code domain selects ap-south-1; otherwise a valid hint wins;
// otherwise the default.
func SelectOptimalRegion(targetURL string, hint Code) Code {
	if host := hostOf(targetURL); host != "" {
		labels := strings.Split(host, ".")
		tld := labels[len(labels)-1]
		for _, t := range southAsianTLDs {
			if tld == t {
				return APSouth1
			}
		}
	}
	if Valid(hint) {
		return hint
	}
	return Default
}

// hostOf extracts a lowercase hostname, tolerating a missing scheme.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
