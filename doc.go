// Package lmsauth provides account registration, login, Google and GitHub
// sign-in, password changes and request authentication for a learning
// platform.
//
// # Architecture
//
// AuthService is the orchestration layer. It owns a Store (where users live),
// a PasswordHasher (bcrypt), a TokenIssuer (HS256 JWTs) and a Validator
// (struct tags checked before any store or hashing work). Every operation is
// a plain method (Register, Login, ChangePassword, CurrentUser, Refresh) with
// a thin HTTP handler on top.
//
// Authentication is dual-mode. A successful login both returns an access
// token (also set as the accessToken cookie, with a refreshToken cookie next
// to it) and writes the user into a server-side scs session. Authenticator
// accepts either:
//
//	authn := svc.Authenticator()
//	mux.Handle("/courses", authn.Require(func(w http.ResponseWriter, r *http.Request, id lmsauth.Identity) {
//	    // id.UserID, id.Role ...
//	}))
//
// # Basic Usage
//
//	store := fs.NewStore("/var/lib/lmsauth")
//	tokens := lmsauth.NewTokenIssuer(secret, "lmsauth")
//	sessions := scs.New()
//	svc := lmsauth.NewAuthService(store, lmsauth.NewBcryptHasher(12), tokens, sessions)
//
//	google := &lmsauth.OAuthLogin{
//	    Provider:  oauth2.NewGoogleProvider(oauth2.GoogleConfig{...}),
//	    ClientURL: "https://app.example.com",
//	}
//	http.ListenAndServe(":3000", lmsauth.NewRouter(svc, google))
//
// Each OAuthLogin mounts /auth/<provider> and /auth/<provider>/callback. Any
// IdentityProvider works; oauth2 ships Google and GitHub.
//
// # Store Implementations
//
// The stores directory has Postgres (pgx), GORM, Cloud Datastore and
// file-backed implementations. All of them enforce email uniqueness
// atomically and report misses with ErrNotFound.
//
// # Security
//
// Login failures are indistinguishable: unknown emails, wrong passwords,
// passwordless (OAuth-only) and inactive accounts all produce the same
// "Invalid credentials" response after the same amount of bcrypt work.
// Password hashes never leave the store layer except for verification.
package lmsauth
