/*
Package ucerr defines the unicomm error taxonomy.

Every failure the framework reports is an *Error carrying a Kind and
a Tag. The Kind decides how far the failure spreads:

	KindTransport  the session is closed
	KindProtocol   the session is closed, other sessions are unaffected
	KindRegistry   the caller is told; nothing else changes
	KindConfig     construction fails

Handler code classifies errors with errors.Is against the exported
sentinels, or with KindOf.
*/
package ucerr
