package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/util"
)

var challengeParam = regexp.MustCompile(`([\w-]+)=("([^"]*)"|([^\s,]+))`)

// Challenge is a parsed WWW-Authenticate / Proxy-Authenticate digest challenge.
// Only MD5 is supported.
type Challenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Algorithm string
	QOP       []string
}

// ParseChallenge parses the value of a digest challenge header.
func ParseChallenge(value string) (*Challenge, error) {
	value = strings.TrimSpace(value)
	if len(value) < 6 || !strings.EqualFold(value[:6], "digest") {
		return nil, fmt.Errorf("unsupported auth scheme in %q", value)
	}

	c := &Challenge{Algorithm: "MD5"}
	for _, match := range challengeParam.FindAllStringSubmatch(value[6:], -1) {
		v := match[4]
		if match[3] != "" || strings.HasPrefix(match[2], `"`) {
			v = match[3]
		}
		switch strings.ToLower(match[1]) {
		case "realm":
			c.Realm = v
		case "nonce":
			c.Nonce = v
		case "opaque":
			c.Opaque = v
		case "algorithm":
			c.Algorithm = v
		case "qop":
			for _, q := range strings.Split(v, ",") {
				if q = strings.TrimSpace(q); q != "" {
					c.QOP = append(c.QOP, q)
				}
			}
		}
	}
	if c.Nonce == "" {
		return nil, fmt.Errorf("digest challenge without nonce")
	}
	if !strings.EqualFold(c.Algorithm, "MD5") {
		return nil, fmt.Errorf("unsupported digest algorithm %s", c.Algorithm)
	}
	return c, nil
}

func (c *Challenge) supportsAuthQOP() bool {
	for _, q := range c.QOP {
		if strings.EqualFold(q, "auth") {
			return true
		}
	}
	return false
}

// Credentials is the computed Authorization header value.
type Credentials struct {
	Username  string
	Realm     string
	Nonce     string
	URI       string
	Response  string
	Algorithm string
	Opaque    string
	QOP       string
	NC        string
	CNonce    string
}

func (cr *Credentials) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s",realm="%s",nonce="%s",uri="%s",response="%s",algorithm=%s`,
		cr.Username, cr.Realm, cr.Nonce, cr.URI, cr.Response, cr.Algorithm)
	if cr.Opaque != "" {
		fmt.Fprintf(&b, `,opaque="%s"`, cr.Opaque)
	}
	if cr.QOP != "" {
		fmt.Fprintf(&b, `,qop=%s,nc=%s,cnonce="%s"`, cr.QOP, cr.NC, cr.CNonce)
	}
	return b.String()
}

// Respond computes the digest response to c for the given request line.
// cnonce is only used when the challenge offers qop=auth.
func (c *Challenge) Respond(method, uri, username, password, cnonce string, nc uint32) *Credentials {
	cr := &Credentials{
		Username:  username,
		Realm:     c.Realm,
		Nonce:     c.Nonce,
		URI:       uri,
		Algorithm: c.Algorithm,
		Opaque:    c.Opaque,
	}

	ha1 := md5Hex(username + ":" + c.Realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)

	if c.supportsAuthQOP() {
		cr.QOP = "auth"
		cr.NC = fmt.Sprintf("%08x", nc)
		cr.CNonce = cnonce
		cr.Response = md5Hex(ha1 + ":" + c.Nonce + ":" + cr.NC + ":" + cnonce + ":auth:" + ha2)
	} else {
		cr.Response = md5Hex(ha1 + ":" + c.Nonce + ":" + ha2)
	}
	return cr
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AuthorizeRequest answers the challenge carried by response and bumps the
// request's CSeq and Via branch so it can be resent as a new transaction.
func AuthorizeRequest(request sip.Request, response sip.Response, user, password string, nc uint32) error {
	if user == "" {
		return fmt.Errorf("authorize request: user is empty")
	}

	var authenticateHeaderName, authorizeHeaderName string
	switch response.StatusCode() {
	case 401:
		authenticateHeaderName = "WWW-Authenticate"
		authorizeHeaderName = "Authorization"
	case 407:
		authenticateHeaderName = "Proxy-Authenticate"
		authorizeHeaderName = "Proxy-Authorization"
	default:
		return fmt.Errorf("authorize request: unexpected status %d", response.StatusCode())
	}

	hdrs := response.GetHeaders(authenticateHeaderName)
	if len(hdrs) == 0 {
		return fmt.Errorf("authorize request: header '%s' not found in response", authenticateHeaderName)
	}

	challenge, err := ParseChallenge(hdrs[0].Value())
	if err != nil {
		return fmt.Errorf("authorize request: %w", err)
	}

	creds := challenge.Respond(string(request.Method()), request.Recipient().String(), user, password, util.RandString(16), nc)

	request.RemoveHeader(authorizeHeaderName)
	request.AppendHeader(&sip.GenericHeader{
		HeaderName: authorizeHeaderName,
		Contents:   creds.String(),
	})

	if viaHop, ok := request.ViaHop(); ok {
		viaHop.Params.Add("branch", sip.String{Str: sip.GenerateBranch()})
	}

	if cseq, ok := request.CSeq(); ok {
		cseq.SeqNo++
	}

	return nil
}

// ClientAuthorizer implements sip.Authorizer for a single account.
type ClientAuthorizer struct {
	user     string
	password string
	nc       uint32
}

func NewClientAuthorizer(u string, p string) *ClientAuthorizer {
	return &ClientAuthorizer{
		user:     u,
		password: p,
	}
}

func (auth *ClientAuthorizer) AuthorizeRequest(request sip.Request, response sip.Response) error {
	auth.nc++
	return AuthorizeRequest(request, response, auth.user, auth.password, auth.nc)
}
