// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package consts

const MetricsNamespace = "pidtrace"
