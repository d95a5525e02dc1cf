// Package bootcfg rewrites the GRUB menu of an extracted RHEL-family
// installer tree so that the first install entry boots unattended.
//
// The rewrite appends an `inst.ks=hd:LABEL=<label>:/ks.cfg` directive to the
// first eligible `linuxefi` line, selects entry 0 and shortens the menu
// timeout. The volume label is taken from the descriptor's `search` line,
// which is why the rewrite must run against the descriptor as shipped on the
// medium: a descriptor that already carries the directive is rejected.
package bootcfg
