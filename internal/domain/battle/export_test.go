package battle

// ForceEnd exposes forceEnd to the external test package.
var ForceEnd = forceEnd
