package ipset

import "encoding/xml"

// listResult maps the output of `ipset list <set> -output xml`.
type listResult struct {
	XMLName xml.Name   `xml:"ipsets"`
	Sets    []listItem `xml:"ipset"`
}

type listItem struct {
	Name    string     `xml:"name,attr"`
	Type    string     `xml:"type"`
	Header  listHeader `xml:"header"`
	Members []struct {
		Elem string `xml:"elem"`
	} `xml:"members>member"`
}

type listHeader struct {
	Family string `xml:"family"`
	// References counts kernel side users, e.g. iptables rules.
	References int `xml:"references"`
	Numentries int `xml:"numentries"`
}
