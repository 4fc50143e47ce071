package kube

import "k8s.io/apimachinery/pkg/runtime/schema"

// Resources managed through the dynamic client
var (
	SubscriptionGVR = schema.GroupVersionResource{
		Group: "operators.coreos.com", Version: "v1alpha1", Resource: "subscriptions",
	}
	OperatorGroupGVR = schema.GroupVersionResource{
		Group: "operators.coreos.com", Version: "v1", Resource: "operatorgroups",
	}
	ClusterServiceVersionGVR = schema.GroupVersionResource{
		Group: "operators.coreos.com", Version: "v1alpha1", Resource: "clusterserviceversions",
	}
	InstallPlanGVR = schema.GroupVersionResource{
		Group: "operators.coreos.com", Version: "v1alpha1", Resource: "installplans",
	}

	CentralGVR = schema.GroupVersionResource{
		Group: "platform.stackrox.io", Version: "v1alpha1", Resource: "centrals",
	}
	SecuredClusterGVR = schema.GroupVersionResource{
		Group: "platform.stackrox.io", Version: "v1alpha1", Resource: "securedclusters",
	}

	ServiceMonitorGVR = schema.GroupVersionResource{
		Group: "monitoring.coreos.com", Version: "v1", Resource: "servicemonitors",
	}

	ComplianceSuiteGVR = schema.GroupVersionResource{
		Group: "compliance.openshift.io", Version: "v1alpha1", Resource: "compliancesuites",
	}
	ScanSettingBindingGVR = schema.GroupVersionResource{
		Group: "compliance.openshift.io", Version: "v1alpha1", Resource: "scansettingbindings",
	}
)

// ListKinds maps the resources above to their list kinds, as the fake dynamic
// client requires.
func ListKinds() map[schema.GroupVersionResource]string {
	return map[schema.GroupVersionResource]string{
		SubscriptionGVR:          "SubscriptionList",
		OperatorGroupGVR:         "OperatorGroupList",
		ClusterServiceVersionGVR: "ClusterServiceVersionList",
		InstallPlanGVR:           "InstallPlanList",
		CentralGVR:               "CentralList",
		SecuredClusterGVR:        "SecuredClusterList",
		ServiceMonitorGVR:        "ServiceMonitorList",
		ComplianceSuiteGVR:       "ComplianceSuiteList",
		ScanSettingBindingGVR:    "ScanSettingBindingList",
	}
}
