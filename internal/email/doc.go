// Package email finds email addresses in fetched page content.
//
// Extraction is purely syntactic. An address is anything shaped like
// local-part@domain.tld where the final label has at least two letters.
// Matches that end in a known asset extension (".png", ".js", ".html", ...)
// are discarded because they are almost always file names such as
// "logo@2x.png" rather than addresses.
//
//	ex := email.NewExtractor()
//	addrs := ex.Extract(body)
//	addrs = append(addrs, ex.ExtractMailto(body)...)
package email
