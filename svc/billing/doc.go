// Package billing is the HTTP surface of the billing core.
//
// Routes, mounted under /billing:
//
//	POST /webhook   signed provider notifications, rate limited per client address
//	GET  /status    caller's subscription record or null
//	GET  /prices    purchasable prices
//	POST /checkout  {priceId, successUrl?, cancelUrl?} -> {sessionUrl}
//	POST /portal    {returnUrl?} -> {sessionUrl}
//	POST /switch    {newPriceId} -> {ok}
//	POST /cancel    -> {ok, effectiveAt}
//	POST /resume    -> {ok}
//
// Every route except the webhook requires a bearer token. Error kinds map to
// 401, 403, 400, 409, 404 and 502; anything unclassified is a 500 with a generic
// body. Metrics wraps the routes with Prometheus collectors and instruments the
// provider and notifier; Janitor trims the processed-event ledger.
package billing
