package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lokkit/kiosk-server/internal/utils"
)

const testSecret = "test-secret"

func runProtected(t *testing.T, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/api/master/open-locker", nil)
    if authHeader != "" {
        req.Header.Set("Authorization", authHeader)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)

    h := StaffAuth(testSecret)(func(c echo.Context) error {
        return c.NoContent(http.StatusOK)
    })
    require.NoError(t, h(c))
    return rec, c
}

func TestStaffAuthAcceptsIssuedToken(t *testing.T) {
    tok, err := utils.NewStaffToken(testSecret, "alex", 5)
    require.NoError(t, err)

    rec, c := runProtected(t, "Bearer "+tok.Token)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "alex", c.Get("staff_id"))
    assert.Equal(t, "staff", c.Get("role"))
}

func TestStaffAuthRejectsMissingHeader(t *testing.T) {
    rec, _ := runProtected(t, "")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffAuthRejectsGarbageToken(t *testing.T) {
    rec, _ := runProtected(t, "Bearer not-a-jwt")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffAuthRejectsWrongSecret(t *testing.T) {
    tok, err := utils.NewStaffToken("another-secret", "alex", 5)
    require.NoError(t, err)

    rec, _ := runProtected(t, "Bearer "+tok.Token)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffAuthRejectsExpiredToken(t *testing.T) {
    tok, err := utils.NewStaffToken(testSecret, "alex", -5)
    require.NoError(t, err)

    rec, _ := runProtected(t, "Bearer "+tok.Token)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    h := RequireRole("staff")(func(c echo.Context) error {
        return c.NoContent(http.StatusOK)
    })

    run := func(role any) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodPost, "/", nil)
        rec := httptest.NewRecorder()
        c := e.NewContext(req, rec)
        if role != nil {
            c.Set("role", role)
        }
        require.NoError(t, h(c))
        return rec
    }

    assert.Equal(t, http.StatusOK, run("staff").Code)
    assert.Equal(t, http.StatusForbidden, run("visitor").Code)
    assert.Equal(t, http.StatusForbidden, run(nil).Code)
    assert.Equal(t, http.StatusForbidden, run(42).Code)
}
