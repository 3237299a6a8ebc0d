// Package server provides HTTP routing, middleware, and the OAuth callback handler used by the CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it was added: the first middleware sees the request first.
//
// The [BasicRouter] implementation registers "METHOD /path" patterns on an [http.ServeMux],
// so a wrong method gets a 405 from the mux itself.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), redeems the authorization code through an
// [ExchangeFunc], and sends the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Current Usage
//
// `mixtape auth spotify` listens on the configured [server] host and port (127.0.0.1:9090 by default),
// opens the Spotify consent page, and waits in [AwaitCallback] for the redirect.
// The server shuts down as soon as a token arrives.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
