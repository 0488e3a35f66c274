package kqueue

// AIO has no portable back-end to ground it on in this implementation;
// every queue installs the shared not-implemented sentinel for it (spec
// §4.2: "a filter that a platform does not implement... all refuse with
// 'not implemented'").
var aioFilter Filter = notImplementedFilter{}
