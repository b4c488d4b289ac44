// utils/countries.go
package utils

import (
	"regexp"
	"sort"
	"strings"
)

// Addresses are "; " separated with the country code closing each address.
var addressCountryRegex = regexp.MustCompile(`([A-Z]{2})$|([A-Z]{2});`)

// IDs are "; " separated and start with a country code followed by a comma.
// Free-text notes share the field but are sentence case, so they do not match.
var idCountryRegex = regexp.MustCompile(`^([A-Z]{2}),|; ([A-Z]{2}),`)

// ExtractCountries returns the distinct, valid ISO 3166-1 alpha-2 codes found
// in the addresses and ids columns of an export row, sorted.
// It is a heuristic: capitalized words that look like codes but are not in
// the ISO table are dropped.
func ExtractCountries(addresses, ids string) []string {
	found := make(map[string]struct{})
	collect := func(re *regexp.Regexp, s string) {
		if s == "" {
			return
		}
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			for _, group := range m[1:] {
				if group != "" && IsCountryCode(group) {
					found[group] = struct{}{}
				}
			}
		}
	}
	collect(addressCountryRegex, addresses)
	collect(idCountryRegex, ids)

	codes := make([]string, 0, len(found))
	for c := range found {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// IsCountryCode reports whether code is an assigned ISO 3166-1 alpha-2 code.
func IsCountryCode(code string) bool {
	_, ok := countryCodes[code]
	return ok
}

var countryCodes = func() map[string]struct{} {
	m := make(map[string]struct{}, 249)
	for _, c := range strings.Fields(iso3166Alpha2) {
		m[c] = struct{}{}
	}
	return m
}()

// Officially assigned ISO 3166-1 alpha-2 codes.
const iso3166Alpha2 = `
AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ
BA BB BD BE BF BG BH BI BJ BL BM BN BO BQ BR BS BT BV BW BY BZ
CA CC CD CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ
DE DJ DK DM DO DZ
EC EE EG EH ER ES ET
FI FJ FK FM FO FR
GA GB GD GE GF GG GH GI GL GM GN GP GQ GR GS GT GU GW GY
HK HM HN HR HT HU
ID IE IL IM IN IO IQ IR IS IT
JE JM JO JP
KE KG KH KI KM KN KP KR KW KY KZ
LA LB LC LI LK LR LS LT LU LV LY
MA MC MD ME MF MG MH MK ML MM MN MO MP MQ MR MS MT MU MV MW MX MY MZ
NA NC NE NF NG NI NL NO NP NR NU NZ
OM
PA PE PF PG PH PK PL PM PN PR PS PT PW PY
QA
RE RO RS RU RW
SA SB SC SD SE SG SH SI SJ SK SL SM SN SO SR SS ST SV SX SY SZ
TC TD TF TG TH TJ TK TL TM TN TO TR TT TV TW TZ
UA UG UM US UY UZ
VA VC VE VG VI VN VU
WF WS
YE YT
ZA ZM ZW
`
