package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
)

func (a *App) readIdentity() (string, string, error) {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return "", "", err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

func (a *App) Register(ctx context.Context) error {
	name, err := GetSimpleText(a.reader, "Name", a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := GetNewPassword(a.out)
	if err != nil {
		fmt.Fprintf(a.out, "Registration cancelled: %v\n", err)
		return err
	}

	u, err := a.session.Register(ctx, name, email, password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAlreadyExists):
			fmt.Fprintln(a.out, "This email is already registered")
		case errors.Is(err, common.ErrValidation):
			fmt.Fprintln(a.out, "Name, email and password are required")
		default:
			fmt.Fprintf(a.out, "Registration failed: %v\n", err)
		}
		return err
	}

	fmt.Fprintf(a.out, "Registered %s, you can log in now\n", u.Email)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, password, err := a.readIdentity()
	if err != nil {
		return err
	}

	u, err := a.session.Login(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrAuthenticationFailed):
			fmt.Fprintln(a.out, "Wrong email or password")
		case errors.Is(err, common.ErrRateLimited):
			fmt.Fprintln(a.out, "Too many failed attempts, try again later")
		default:
			fmt.Fprintf(a.out, "Login failed: %v\n", err)
		}
		return err
	}

	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", u.Email, u.Role)
	return nil
}

// Me asks the server who the current access token belongs to.
func (a *App) Me(ctx context.Context) error {
	var resp struct {
		User credentials.User `json:"user"`
	}
	if err := a.session.GetJSON(ctx, "/api/auth/me", &resp); err != nil {
		fmt.Fprintf(a.out, "Request failed: %v\n", err)
		return err
	}

	fmt.Fprintf(a.out, "%s <%s>, role %s, id %s\n", resp.User.Name, resp.User.Email, resp.User.Role, resp.User.ID)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	p := a.session.Current()
	if p.Empty() {
		fmt.Fprintln(a.out, "Not logged in")
		return common.ErrNotLoggedIn
	}

	left := time.Until(p.ExpiresAt()).Round(time.Second)
	if left < 0 {
		fmt.Fprintln(a.out, "Access token expired, it will be renewed on the next request")
	} else {
		fmt.Fprintf(a.out, "Access token valid for %s\n", left)
	}
	if !p.RefreshExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "Session valid until %s\n", p.RefreshExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	return a.logout(ctx, false)
}

func (a *App) LogoutAll(ctx context.Context) error {
	return a.logout(ctx, true)
}

func (a *App) logout(ctx context.Context, all bool) error {
	if err := a.session.Logout(ctx, all); err != nil {
		fmt.Fprintf(a.out, "Logout failed: %v\n", err)
		return err
	}
	if all {
		fmt.Fprintln(a.out, "Logged out everywhere")
	} else {
		fmt.Fprintln(a.out, "Logged out")
	}
	return nil
}
