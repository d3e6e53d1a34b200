package echo

import (
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

// AuthorizePageData is what the authorization page needs to render the user
// code and drive its polling loop.
type AuthorizePageData struct {
	UserCode  string
	BaseURL   string
	ExpiresIn int
}

// DevicePageData is what the device verification page needs.
type DevicePageData struct {
	UserCode string
	BaseURL  string
}

// PageRenderer renders the human-facing pages of the pairing handshake. The
// presentation itself is a collaborator concern; implementations can swap in
// a full asset pipeline. DefaultRenderer ships a minimal usable page.
type PageRenderer interface {
	AuthorizePage(c echo.Context, data AuthorizePageData) error
	DevicePage(c echo.Context, data DevicePageData) error
}

var authorizeTmpl = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html>
<head><title>Pair your agent</title></head>
<body>
  <h1>Pairing code</h1>
  <p><code id="userCode">{{.UserCode}}</code></p>
  <p>Enter this code on your account page, then return here. This code expires in {{.ExpiresIn}} seconds.</p>
  <div id="status"></div>
  <script>
    const interval = setInterval(function () {
      fetch('{{.BaseURL}}/oauth/check?code={{.UserCode}}')
        .then(function (r) { return r.json(); })
        .then(function (data) {
          if (data.authorized) {
            clearInterval(interval);
            window.location.href = data.redirect_uri + '?code=' + data.auth_code +
              (data.state ? '&state=' + encodeURIComponent(data.state) : '');
          } else if (data.expired) {
            clearInterval(interval);
            document.getElementById('status').textContent = 'Code expired. Refresh to try again.';
          }
        })
        .catch(function () {});
    }, 3000);
  </script>
</body>
</html>
`))

var deviceTmpl = template.Must(template.New("device").Parse(`<!DOCTYPE html>
<html>
<head><title>Pair your agent</title></head>
<body>
  <h1>Device pairing</h1>
  {{if .UserCode}}
  <p>Your code: <code>{{.UserCode}}</code></p>
  <p>Enter this code on your account page to finish pairing.</p>
  {{else}}
  <p>Enter the code shown by your agent on your account page.</p>
  {{end}}
</body>
</html>
`))

// DefaultRenderer is the built-in minimal page renderer.
type DefaultRenderer struct{}

func (DefaultRenderer) AuthorizePage(c echo.Context, data AuthorizePageData) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return authorizeTmpl.Execute(c.Response().Writer, data)
}

func (DefaultRenderer) DevicePage(c echo.Context, data DevicePageData) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return deviceTmpl.Execute(c.Response().Writer, data)
}
